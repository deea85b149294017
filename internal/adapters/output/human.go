package output

import (
	"fmt"
	"os"
	"time"

	"github.com/pterm/pterm"
)

// HumanPrinter prints human-readable output.
type HumanPrinter struct{}

// Print renders human output.
func (HumanPrinter) Print(v any) error {
	switch data := v.(type) {
	case SessionsResult:
		return printSessions(data)
	case ForgetResult:
		pterm.Success.Printfln("forgot cached session for %s", data.VideoID)
		return nil
	default:
		_, err := fmt.Fprintln(os.Stdout, "ok")
		return err
	}
}

func printSessions(result SessionsResult) error {
	if len(result.Sessions) == 0 {
		pterm.Info.Println("no cached sessions")
		return nil
	}

	rows := pterm.TableData{{"VIDEO", "POSITION", "SPEED", "VOLUME", "VERSION"}}
	for _, s := range result.Sessions {
		rows = append(rows, []string{
			s.VideoID,
			formatPosition(s.Position),
			fmt.Sprintf("%.2fx", s.Speed),
			fmt.Sprintf("%.0f%%", s.Volume*100),
			fmt.Sprintf("%d", s.Version),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

func formatPosition(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second)).Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
