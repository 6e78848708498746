// Package report prints the end-of-run summary of a generate command.
package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/bndr/gotabulate"

	"github.com/mark3labs/swagger2react/internal/emitter/tsemitter"
	"github.com/mark3labs/swagger2react/internal/sheet"
	"github.com/mark3labs/swagger2react/internal/spec"
)

// Summary gathers everything a run produced.
type Summary struct {
	Input      string
	Operations int
	Models     int
	DryRun     bool
	Sheets     []sheet.Written
	Code       *tsemitter.Result
	Issues     []*spec.EntityError
	// Err is the run-scoped failure that stopped the run, if any.
	Err error
}

// HasProblems reports whether the run aborted, skipped an entity or failed a
// file.
func (s *Summary) HasProblems() bool {
	if s.Err != nil || len(s.Issues) > 0 {
		return true
	}
	return s.Code != nil && len(s.Code.Failures) > 0
}

// Counts tallies planned files by merge state.
func (s *Summary) Counts() map[string]int {
	out := map[string]int{}
	if s.Code == nil {
		return out
	}
	for _, f := range s.Code.Planned {
		out[f.State.String()]++
		if !f.Changed {
			out["unchanged"]++
		}
	}
	return out
}

// Write prints the summary as grid tables.
func (s *Summary) Write(w io.Writer) error {
	mode := "write"
	if s.DryRun {
		mode = "dry-run"
	}
	fmt.Fprintf(w, "swagger2react %s: %s\n", mode, s.Input)
	fmt.Fprintf(w, "operations: %d, models: %d\n", s.Operations, s.Models)

	if len(s.Sheets) > 0 {
		rows := make([][]string, 0, len(s.Sheets))
		for _, sh := range s.Sheets {
			rows = append(rows, []string{sh.Path, strconv.Itoa(sh.Rows), strconv.Itoa(sh.Size), yesNo(sh.Changed)})
		}
		if err := table(w, "Sheets", []string{"Path", "Rows", "Bytes", "Changed"}, rows); err != nil {
			return err
		}
	}

	if s.Code != nil && len(s.Code.Planned) > 0 {
		rows := make([][]string, 0, len(s.Code.Planned))
		for _, f := range s.Code.Planned {
			rows = append(rows, []string{f.RelPath, string(f.Kind), f.State.String(), strconv.Itoa(len(f.Preserved)), yesNo(f.Changed)})
		}
		if err := table(w, "Files", []string{"Path", "Kind", "State", "Regions", "Changed"}, rows); err != nil {
			return err
		}
		c := s.Counts()
		fmt.Fprintf(w, "new: %d, merged: %d, overwritten: %d, unchanged: %d\n",
			c["new"], c["merged"], c["overwritten"], c["unchanged"])
	}

	if s.Code != nil && len(s.Code.Orphans) > 0 {
		rows := make([][]string, 0, len(s.Code.Orphans))
		for _, o := range s.Code.Orphans {
			rows = append(rows, []string{o.RelPath, o.Region})
		}
		if err := table(w, "Orphaned regions", []string{"Path", "Region"}, rows); err != nil {
			return err
		}
	}

	if len(s.Issues) > 0 {
		rows := make([][]string, 0, len(s.Issues))
		for _, is := range s.Issues {
			rows = append(rows, []string{string(is.Kind), is.ID, is.Field, is.Err.Error()})
		}
		if err := table(w, "Skipped", []string{"Kind", "ID", "Field", "Reason"}, rows); err != nil {
			return err
		}
	}

	if s.Code != nil && len(s.Code.Failures) > 0 {
		rows := make([][]string, 0, len(s.Code.Failures))
		for _, f := range s.Code.Failures {
			rows = append(rows, []string{f.RelPath, string(f.Kind), f.Err.Error()})
		}
		if err := table(w, "Failed", []string{"Path", "Kind", "Error"}, rows); err != nil {
			return err
		}
	}

	if s.Err != nil {
		fmt.Fprintf(w, "aborted: %v\n", s.Err)
	}
	return nil
}

func table(w io.Writer, name string, headers []string, rows [][]string) error {
	t := gotabulate.Create(rows)
	t.SetHeaders(headers)
	t.SetAlign("left")
	t.SetWrapStrings(true)
	t.SetMaxCellSize(85)
	_, err := fmt.Fprintf(w, "%s:\n%s", name, t.Render("grid"))
	return err
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
