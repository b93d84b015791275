package record

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/sumitkushwahji/time-traceability-backend/internal/modules/ingest/types"
)

// MinTokens is the number of whitespace separated fields a data line needs.
const MinTokens = 24

var ErrShortLine = errors.New("too few fields")

// LineError reports a field that could not be converted.
type LineError struct {
	Field string
	Token string
	Err   error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("field %s: invalid value %q: %v", e.Field, e.Token, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// ParseLine converts one data line into a Measurement. Source is left empty.
func ParseLine(line string) (types.Measurement, error) {
	tok := strings.Fields(line)
	if len(tok) < MinTokens {
		return types.Measurement{}, fmt.Errorf("%w: got %d, want at least %d", ErrShortLine, len(tok), MinTokens)
	}

	p := fieldParser{tok: tok}
	m := types.Measurement{
		SatToken: tok[0],
		CL:       tok[1],
		STTime:   tok[3],
		FRC:      tok[22],
		CK:       tok[23],
	}
	m.SatSystem, m.Sat = p.satellite(0)
	m.MJD = p.int(2, "MJD")
	m.TRKL = p.int(4, "TRKL")
	m.ELV = p.int(5, "ELV")
	m.AZTH = p.int(6, "AZTH")
	m.REFSV = p.signed(7, "REFSV")
	m.SRSV = p.signed(8, "SRSV")
	m.REFSYS = p.signed(9, "REFSYS")
	m.SRSYS = p.signed(10, "SRSYS")
	m.DSG = p.int(11, "DSG")
	m.IOE = p.int(12, "IOE")
	m.MDTR = p.int(13, "MDTR")
	m.SMDT = p.int(14, "SMDT")
	m.MDIO = p.int(15, "MDIO")
	m.SMDI = p.int(16, "SMDI")
	m.MSIO = p.int(17, "MSIO")
	m.SMSI = p.int(18, "SMSI")
	m.ISG = p.int(19, "ISG")
	m.FR = p.int(20, "FR")
	m.HC = p.int(21, "HC")
	if p.err != nil {
		return types.Measurement{}, p.err
	}
	if len(tok) > MinTokens {
		ion := tok[MinTokens]
		m.IonType = &ion
	}
	return m, nil
}

// fieldParser keeps the first conversion error so ParseLine can read
// straight through the positional layout.
type fieldParser struct {
	tok []string
	err error
}

func (p *fieldParser) fail(field, token string, err error) {
	if p.err == nil {
		p.err = &LineError{Field: field, Token: token, Err: err}
	}
}

func (p *fieldParser) int(i int, field string) int {
	s := strings.TrimPrefix(p.tok[i], "+")
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		p.fail(field, p.tok[i], err)
		return 0
	}
	return int(n)
}

// signed accepts an explicit sign; blank or nan reads as zero.
func (p *fieldParser) signed(i int, field string) int64 {
	s := strings.TrimSpace(p.tok[i])
	if s == "" || strings.EqualFold(s, "nan") {
		return 0
	}
	n, err := strconv.ParseInt(strings.TrimPrefix(s, "+"), 10, 64)
	if err != nil {
		p.fail(field, p.tok[i], err)
		return 0
	}
	return n
}

var errSatellite = errors.New("want a letter and two digits or a number")

// satellite reads "G01" as system G number 1 and "7" as number 7.
func (p *fieldParser) satellite(i int) (string, int) {
	s := p.tok[i]
	if s == "" {
		p.fail("SAT", s, errSatellite)
		return "", 0
	}
	if unicode.IsLetter(rune(s[0])) {
		if len(s) != 3 || !isDigits(s[1:]) {
			p.fail("SAT", s, errSatellite)
			return "", 0
		}
		n, _ := strconv.Atoi(s[1:])
		return strings.ToUpper(s[:1]), n
	}
	if !isDigits(s) {
		p.fail("SAT", s, errSatellite)
		return "", 0
	}
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		p.fail("SAT", s, err)
		return "", 0
	}
	return "", int(n)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
