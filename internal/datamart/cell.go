package datamart

// cell.go converts values returned by pgx into CSV cells.
//
// Rows are scanned generically with Rows.Values, so a cell can be any of the
// Go types pgx decodes to: strings, integers, floats, times, booleans and
// pgtype wrappers for NUMERIC and friends. NULL becomes a missing cell.

import (
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/spf13/cast"
)

// DateTimeLayout is the layout used for timestamp cells.
const DateTimeLayout = "2006-01-02 15:04:05"

// formatCell renders v as a CSV cell. ok is false for NULL.
func formatCell(v any) (s string, ok bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case []byte:
		return string(x), true
	case time.Time:
		return formatTime(x), true
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case bool:
		return formatBool(x), true
	case [16]byte:
		return uuid.UUID(x).String(), true
	case pgtype.Numeric:
		return formatNumeric(x)
	case pgtype.Text:
		return x.String, x.Valid
	case pgtype.Date:
		if !x.Valid {
			return "", false
		}
		return formatTime(x.Time), true
	case pgtype.Timestamp:
		if !x.Valid {
			return "", false
		}
		return formatTime(x.Time), true
	case pgtype.Timestamptz:
		if !x.Valid {
			return "", false
		}
		return formatTime(x.Time), true
	}

	if s, err := cast.ToStringE(v); err == nil {
		return s, true
	}
	return fmt.Sprint(v), true
}

func formatTime(t time.Time) string {
	return t.Format(DateTimeLayout)
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// formatNumeric renders a NUMERIC without exponent, trimming trailing zeros.
func formatNumeric(n pgtype.Numeric) (string, bool) {
	if !n.Valid {
		return "", false
	}
	if n.NaN {
		return "NaN", true
	}
	if n.InfinityModifier != pgtype.Finite {
		f, err := n.Float64Value()
		if err != nil {
			return "", false
		}
		return strconv.FormatFloat(f.Float64, 'f', -1, 64), true
	}

	if n.Int == nil {
		return "0", true
	}

	r := new(big.Rat).SetInt(n.Int)
	if n.Exp > 0 {
		r.Mul(r, new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n.Exp)), nil)))
	} else if n.Exp < 0 {
		r.Quo(r, new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(-n.Exp)), nil)))
	}

	prec := 0
	if n.Exp < 0 {
		prec = int(-n.Exp)
	}
	s := r.FloatString(prec)
	if prec > 0 {
		s = trimZeros(s)
	}
	return s, true
}

func trimZeros(s string) string {
	i := len(s)
	for i > 0 && s[i-1] == '0' {
		i--
	}
	if i > 0 && s[i-1] == '.' {
		i--
	}
	return s[:i]
}
