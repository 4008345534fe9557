package report

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/unidoc/unipdf/v3/creator"
	"github.com/unidoc/unipdf/v3/model"

	"github.com/MikeSquared-Agency/arogya/internal/assessment"
)

// ErrUnencodable is returned when report text uses a script the built-in PDF
// fonts cannot show.
var ErrUnencodable = errors.New("report text not encodable in pdf fonts")

var (
	colorHeading = creator.ColorRGBFrom8bit(0x1f, 0x29, 0x33)
	colorRemedy  = creator.ColorRGBFrom8bit(0x27, 0x67, 0x49)
	colorAlert   = creator.ColorRGBFrom8bit(0xc5, 0x30, 0x30)
	colorMuted   = creator.ColorRGBFrom8bit(0x52, 0x60, 0x6d)
)

type pdfFonts struct {
	regular *model.PdfFont
	bold    *model.PdfFont
}

func loadFonts() (pdfFonts, error) {
	regular, err := model.NewStandard14Font(model.HelveticaName)
	if err != nil {
		return pdfFonts{}, fmt.Errorf("load helvetica: %w", err)
	}
	bold, err := model.NewStandard14Font(model.HelveticaBoldName)
	if err != nil {
		return pdfFonts{}, fmt.Errorf("load helvetica bold: %w", err)
	}
	return pdfFonts{regular: regular, bold: bold}, nil
}

// RenderPDF renders r as a paged PDF. The simplified layout drops colours,
// block structure and the page footer.
func RenderPDF(r *Report, simplified bool) ([]byte, error) {
	if !encodable(r) {
		return nil, ErrUnencodable
	}
	fonts, err := loadFonts()
	if err != nil {
		return nil, err
	}

	c := creator.New()
	c.SetPageMargins(50, 50, 60, 60)

	var footerErr error
	if !simplified {
		c.DrawFooter(footer(c, fonts, r.Header.GeneratedAt.Format("02 Jan 2006"), &footerErr))
	}

	draw := func(text string, font *model.PdfFont, size float64, color creator.Color, top, left float64) error {
		p := c.NewParagraph(pdfText(text))
		p.SetFont(font)
		p.SetFontSize(size)
		p.SetLineHeight(1.3)
		if !simplified {
			p.SetColor(color)
		}
		p.SetMargins(left, 0, top, 2)
		return c.Draw(p)
	}

	title := c.NewParagraph(r.Title)
	title.SetFont(fonts.bold)
	title.SetFontSize(16)
	title.SetTextAlignment(creator.TextAlignmentCenter)
	title.SetMargins(0, 0, 0, 14)
	if err := c.Draw(title); err != nil {
		return nil, fmt.Errorf("draw title: %w", err)
	}

	if err := draw("Patient Information", fonts.bold, 12, colorHeading, 0, 0); err != nil {
		return nil, fmt.Errorf("draw header: %w", err)
	}
	for _, f := range headerFields(r) {
		if err := draw(f[0]+": "+f[1], fonts.regular, 10, colorHeading, 0, 0); err != nil {
			return nil, fmt.Errorf("draw header: %w", err)
		}
	}

	for _, s := range r.Sections {
		if err := draw(s.Title, fonts.bold, 12, colorHeading, 12, 0); err != nil {
			return nil, fmt.Errorf("draw section %s: %w", s.Kind, err)
		}
		if err := drawBody(s, simplified, fonts, draw); err != nil {
			return nil, fmt.Errorf("draw section %s: %w", s.Kind, err)
		}
	}

	if r.Emergency {
		if err := draw(EmergencyWarning, fonts.bold, 10, colorAlert, 14, 0); err != nil {
			return nil, fmt.Errorf("draw emergency warning: %w", err)
		}
	}
	if err := draw("Safety Disclaimer: "+r.Disclaimer, fonts.regular, 9, colorMuted, 16, 0); err != nil {
		return nil, fmt.Errorf("draw disclaimer: %w", err)
	}

	var buf bytes.Buffer
	if err := c.Write(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	if footerErr != nil {
		return nil, fmt.Errorf("draw footer: %w", footerErr)
	}
	return buf.Bytes(), nil
}

// drawBlock draws d onto a footer block.
var drawBlock = func(block *creator.Block, d creator.Drawable) error { return block.Draw(d) }

// footer returns the page footer callback. The first draw error is stored in
// errp because the creator gives the callback no way to return it.
func footer(c *creator.Creator, fonts pdfFonts, generated string, errp *error) func(*creator.Block, creator.FooterFunctionArgs) {
	return func(block *creator.Block, args creator.FooterFunctionArgs) {
		p := c.NewParagraph(fmt.Sprintf("Generated by Arogya AI on %s - Page %d of %d", generated, args.PageNum, args.TotalPages))
		p.SetFont(fonts.regular)
		p.SetFontSize(9)
		p.SetColor(colorMuted)
		p.SetWidth(block.Width() - 100)
		p.SetTextAlignment(creator.TextAlignmentCenter)
		p.SetPos(50, block.Height()-30)
		if err := drawBlock(block, p); err != nil && *errp == nil {
			*errp = fmt.Errorf("page %d: %w", args.PageNum, err)
		}
	}
}

type drawFunc func(text string, font *model.PdfFont, size float64, color creator.Color, top, left float64) error

func drawBody(s Section, simplified bool, fonts pdfFonts, draw drawFunc) error {
	color := colorHeading
	if s.Kind == assessment.TraditionalRemedy {
		color = colorRemedy
	}
	if simplified || len(s.Blocks) == 0 {
		return draw(s.Body, fonts.regular, 10, color, 2, 0)
	}
	for _, b := range s.Blocks {
		if b.Kind == BlockList {
			for _, item := range b.Items {
				if err := draw("•  "+item, fonts.regular, 10, color, 1, 12); err != nil {
					return err
				}
			}
			continue
		}
		if err := draw(b.Text, fonts.regular, 10, color, 4, 0); err != nil {
			return err
		}
	}
	return nil
}

// encodable reports whether every letter in the report can be drawn with the
// standard Helvetica encoding.
func encodable(r *Report) bool {
	texts := []string{r.Title, r.Header.Name, r.Header.Age, r.Header.Gender, r.Header.Location, r.Disclaimer}
	for _, s := range r.Sections {
		texts = append(texts, s.Title, s.Body)
	}
	for _, t := range texts {
		for _, ch := range t {
			if unicode.IsLetter(ch) && ch > unicode.MaxLatin1 {
				return false
			}
		}
	}
	return true
}

var winAnsiExtras = map[rune]bool{'–': true, '—': true, '‘': true, '’': true, '“': true, '”': true, '•': true, '…': true}

// pdfText drops symbols such as emoji that the standard fonts cannot show.
func pdfText(s string) string {
	return strings.TrimSpace(strings.Map(func(ch rune) rune {
		if ch <= unicode.MaxLatin1 || winAnsiExtras[ch] {
			return ch
		}
		return -1
	}, s))
}
