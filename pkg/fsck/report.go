package fsck

import (
	"fmt"
	"io"

	"github.com/sisatech/tablewriter"
)

// PrintReport renders a finished Result as the tabular "[FSCK] ... [Ok..]"
// summary §7 describes, plus an "Unreachable NIDs" table when C9 found
// any, matching the plain-table style the teacher's report command uses
// for its own tabular output.
func PrintReport(w io.Writer, result *Result) {

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Check", "Result"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetColumnSeparator("")

	rows := [][]string{
		{"sit segment totals", okLabel(result.Reconcile.SitSegmentTotalOk)},
		{"nat/sit node counts", okLabel(result.Reconcile.NatNodeCountOk)},
		{"checkpoint free-segment count", okLabel(result.Reconcile.FreeSegCountOk)},
		{"checkpoint valid-node count", okLabel(result.Reconcile.ValidNodeCountOk)},
		{"checkpoint valid-inode count", okLabel(result.Reconcile.ValidInodeCountOk)},
		{"checkpoint valid-block count", okLabel(result.Reconcile.ValidBlockCountOk)},
		{"nat bitmap fully reached", okLabel(result.Reconcile.NatBitmapOk)},
		{"main bitmap matches sit bitmap", okLabel(result.Reconcile.MainSitBitmapOk)},
		{"current segment cursors free", okLabel(result.Reconcile.CursegFreeOk)},
		{"segment types", okLabel(result.Reconcile.SegTypeOk)},
	}
	for _, row := range rows {
		table.Append(row)
	}
	table.Render()

	if len(result.Reconcile.UnreachableNids) > 0 {
		nidTable := tablewriter.NewWriter(w)
		nidTable.SetHeader([]string{"Unreachable NID"})
		nidTable.SetAlignment(tablewriter.ALIGN_LEFT)
		nidTable.SetBorder(false)
		for _, nid := range result.Reconcile.UnreachableNids {
			nidTable.Append([]string{nidLabel(nid)})
		}
		nidTable.Render()
	}
}

func okLabel(ok bool) string {
	if ok {
		return "[Ok..]"
	}
	return "[Fail]"
}

func nidLabel(nid uint32) string {
	return fmt.Sprintf("NID[%d] has unreachable links", nid)
}
