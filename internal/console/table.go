// Package console renders the live fleet table spec.md §1 names as an
// out-of-scope collaborator needing a body: a periodic snapshot of taxi
// state (assignments are not shown), replacing the original's rich.Live
// table. Grounded on
// teranos-QNTX/ats/ix/progress.go's pterm usage
// (pterm.Printf/pterm.Success/pterm.Error), extended here to pterm's table
// renderer for the tabular view this package needs.
package console

import (
	"fmt"

	"github.com/pterm/pterm"

	"github.com/dvargas135/my-uber/internal/store"
)

// RenderFleet prints a snapshot table of every taxi's status to stdout.
func RenderFleet(taxis []store.Taxi) error {
	rows := pterm.TableData{{"taxi_id", "pos", "speed", "status", "connected"}}
	for _, t := range taxis {
		rows = append(rows, []string{
			fmt.Sprintf("%d", t.TaxiID),
			fmt.Sprintf("(%d,%d)", t.PosX, t.PosY),
			fmt.Sprintf("%d", t.Speed),
			string(t.Status),
			fmt.Sprintf("%v", t.Connected),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

// ReportAssignment prints a one-line success/failure summary for a matched
// or rejected ride request, mirroring the original's console feedback.
func ReportAssignment(userID int, taxiID int, ok bool) {
	if ok {
		pterm.Success.Printfln("user %d assigned taxi %d", userID, taxiID)
		return
	}
	pterm.Warning.Printfln("user %d: no taxi available", userID)
}

// ReportError prints a formatted error line for CLI-level failures.
func ReportError(stage string, err error) {
	pterm.Error.Printfln("%s: %v", stage, err)
}
