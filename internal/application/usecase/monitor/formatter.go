package monitor

import (
	"fmt"
	"strings"

	"mdrelay/internal/domain"
	"mdrelay/internal/domain/model"
	dsvc "mdrelay/internal/domain/service"
)

const (
	ansiReset    = "\033[0m"
	ansiRed      = "\033[31m"
	ansiGreen    = "\033[32m"
	ansiYellow   = "\033[33m"
	ansiDim      = "\033[2m"
	ansiClearEOL = "\033[K"
)

func colorize(s, c string) string { return c + s + ansiReset }

type Formatter struct {
	ChangeThreshold float64
}

func NewFormatter(threshold float64) *Formatter {
	return &Formatter{ChangeThreshold: threshold}
}

type RenderMode int

const (
	RenderLive RenderMode = iota
	RenderSnapshot
)

func (f *Formatter) Render(st *State, mode RenderMode) string {
	snap := st.Snapshot()
	assets := st.Assets()

	var sb strings.Builder
	if mode == RenderLive {
		sb.WriteString("\r")
	}

	sb.WriteString(colorize("[MDRELAY] ", ansiDim))

	for i, asset := range assets {
		if i > 0 {
			sb.WriteString(colorize("  ||  ", ansiDim))
		}
		as := snap[asset]

		px := "--"
		pCol := ansiYellow
		if as.price.HasValue {
			px = formatPrice(as.price.Number)
			switch as.price.Direction {
			case domain.DirectionUp:
				pCol = ansiGreen
			case domain.DirectionDown:
				pCol = ansiRed
			}
		}

		chg := "24h=--"
		cCol := ansiYellow
		if as.price.HasValue {
			chg = fmt.Sprintf("24h=%+.2f%%", as.change24h)
			switch dsvc.ChangeColor(as.change24h, f.ChangeThreshold) {
			case +1:
				cCol = ansiGreen
			case -1:
				cCol = ansiRed
			}
		}

		sb.WriteString(as.label)
		sb.WriteString(" ")
		sb.WriteString(colorize("$"+px, pCol))
		sb.WriteString(" ")
		sb.WriteString(colorize(chg, cCol))

		if t := as.lastTrade; t != nil {
			tCol := ansiGreen
			if t.Side == model.SideSell {
				tCol = ansiRed
			}
			sb.WriteString(" ")
			sb.WriteString(colorize(fmt.Sprintf("%s %.4g", strings.ToUpper(string(t.Side)), t.Amount), tCol))
		}
	}

	if mode == RenderLive {
		sb.WriteString(ansiClearEOL)
	}
	return sb.String()
}

// formatPrice 小额代币保留更多有效位
func formatPrice(v float64) string {
	switch {
	case v >= 1:
		return fmt.Sprintf("%.4f", v)
	case v > 0:
		return fmt.Sprintf("%.8g", v)
	default:
		return "0"
	}
}
