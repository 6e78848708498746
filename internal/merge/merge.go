// Package merge reconciles freshly rendered files with the copies already on
// disk, carrying developer-authored regions forward.
//
// A region is delimited by line comments:
//
//	// #region custom:hooks
//	...hand written code...
//	// #endregion custom:hooks
package merge

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

const (
	beginPrefix  = "// #region custom:"
	endPrefix    = "// #endregion custom:"
	orphanSuffix = " (orphaned)"
)

// Begin returns the opening marker line of region name.
func Begin(name string) string { return beginPrefix + name }

// End returns the closing marker line of region name.
func End(name string) string { return endPrefix + name }

// ErrMergeConflict is matched by every MergeConflictError.
var ErrMergeConflict = errors.New("merge conflict")

// MergeConflictError is scoped to one file; other files of the run proceed.
type MergeConflictError struct {
	Path   string
	Reason string
	Err    error
}

func (e *MergeConflictError) Error() string {
	where := e.Path
	if where == "" {
		where = "<unnamed>"
	}
	if e.Err != nil {
		return fmt.Sprintf("merge conflict in %s: %s: %v", where, e.Reason, e.Err)
	}
	return fmt.Sprintf("merge conflict in %s: %s", where, e.Reason)
}

func (e *MergeConflictError) Is(target error) bool { return target == ErrMergeConflict }
func (e *MergeConflictError) Unwrap() error        { return e.Err }

// MarkerError reports a malformed region marker.
type MarkerError struct {
	Line   int
	Region string
	Reason string
}

func (e *MarkerError) Error() string {
	if e.Region == "" {
		return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("line %d: region %q: %s", e.Line, e.Region, e.Reason)
}

// Region is one preserved span. Body holds the exact bytes between the two
// marker lines.
type Region struct {
	Name     string
	Body     string
	Orphaned bool
	// Line is the 1-based line of the opening marker.
	Line int
}

type marker int

const (
	noMarker marker = iota
	beginMarker
	endMarker
)

func parseMarker(line string) (marker, string, bool) {
	s := strings.TrimSpace(line)
	if rest, ok := strings.CutPrefix(s, beginPrefix); ok {
		rest, orphaned := strings.CutSuffix(rest, orphanSuffix)
		return beginMarker, strings.TrimSpace(rest), orphaned
	}
	if rest, ok := strings.CutPrefix(s, endPrefix); ok {
		return endMarker, strings.TrimSpace(rest), false
	}
	return noMarker, "", false
}

// Scan discovers every region of content in order. Nested, unmatched,
// duplicated or unterminated markers are errors.
func Scan(content []byte) ([]Region, error) {
	var (
		regions []Region
		open    *Region
		body    strings.Builder
		seen    = map[string]int{}
	)
	lines := strings.SplitAfter(string(content), "\n")
	for i, line := range lines {
		n := i + 1
		kind, name, orphaned := parseMarker(line)
		switch kind {
		case beginMarker:
			if name == "" {
				return nil, &MarkerError{Line: n, Reason: "region without a name"}
			}
			if open != nil {
				return nil, &MarkerError{Line: n, Region: name, Reason: fmt.Sprintf("nested inside %q", open.Name)}
			}
			if first, dup := seen[name]; dup {
				return nil, &MarkerError{Line: n, Region: name, Reason: fmt.Sprintf("already declared on line %d", first)}
			}
			seen[name] = n
			open = &Region{Name: name, Orphaned: orphaned, Line: n}
			body.Reset()
		case endMarker:
			if open == nil {
				return nil, &MarkerError{Line: n, Region: name, Reason: "end marker without a matching start"}
			}
			if name != open.Name {
				return nil, &MarkerError{Line: n, Region: name, Reason: fmt.Sprintf("closes %q", open.Name)}
			}
			open.Body = body.String()
			regions = append(regions, *open)
			open = nil
		default:
			if open != nil {
				body.WriteString(line)
			}
		}
	}
	if open != nil {
		return nil, &MarkerError{Line: open.Line, Region: open.Name, Reason: "not terminated"}
	}
	return regions, nil
}

// State is the condition of the target file before merging.
type State int

const (
	NotExists State = iota
	ExistsClean
	ExistsWithRegions
)

func (s State) String() string {
	switch s {
	case NotExists:
		return "new"
	case ExistsClean:
		return "overwritten"
	case ExistsWithRegions:
		return "merged"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Outcome is the merged content of one file plus what happened to its regions.
type Outcome struct {
	Content   []byte
	State     State
	Preserved []string
	Orphans   []string
	// Changed is false when Content equals the existing file.
	Changed bool
}

// Merge splices the regions of existing into rendered. A nil existing means
// the file does not exist yet. Regions of existing that rendered no longer
// declares are appended to the end as orphans, so no hand-written text is
// lost. Mandatory names must appear in rendered whenever existing carries
// regions.
func Merge(existing, rendered []byte, mandatory []string) (Outcome, error) {
	if existing == nil {
		return Outcome{Content: rendered, State: NotExists, Changed: true}, nil
	}
	old, err := Scan(existing)
	if err != nil {
		return Outcome{}, &MergeConflictError{Reason: "malformed markers in existing file", Err: err}
	}
	if len(old) == 0 {
		return Outcome{Content: rendered, State: ExistsClean, Changed: !bytes.Equal(existing, rendered)}, nil
	}

	fresh, err := Scan(rendered)
	if err != nil {
		return Outcome{}, &MergeConflictError{Reason: "malformed markers in rendered output", Err: err}
	}
	anchors := make(map[string]bool, len(fresh))
	for _, r := range fresh {
		anchors[r.Name] = true
	}
	for _, name := range mandatory {
		if !anchors[name] {
			return Outcome{}, &MergeConflictError{Reason: fmt.Sprintf("rendered output lost mandatory region %q", name)}
		}
	}

	bodies := make(map[string]string, len(old))
	for _, r := range old {
		bodies[r.Name] = r.Body
	}

	out := Outcome{State: ExistsWithRegions}
	var buf bytes.Buffer
	skipping := false
	for _, line := range strings.SplitAfter(string(rendered), "\n") {
		kind, name, _ := parseMarker(line)
		switch {
		case kind == beginMarker:
			buf.WriteString(line)
			if body, ok := bodies[name]; ok {
				buf.WriteString(body)
				out.Preserved = append(out.Preserved, name)
				skipping = true
			}
		case kind == endMarker:
			skipping = false
			buf.WriteString(line)
		case !skipping:
			buf.WriteString(line)
		}
	}

	for _, r := range old {
		if anchors[r.Name] {
			continue
		}
		if buf.Len() > 0 && !bytes.HasSuffix(buf.Bytes(), []byte("\n")) {
			buf.WriteByte('\n')
		}
		buf.WriteString("\n" + Begin(r.Name) + orphanSuffix + "\n")
		buf.WriteString(r.Body)
		if r.Body != "" && !strings.HasSuffix(r.Body, "\n") {
			buf.WriteByte('\n')
		}
		buf.WriteString(End(r.Name) + "\n")
		out.Orphans = append(out.Orphans, r.Name)
	}

	out.Content = buf.Bytes()
	out.Changed = !bytes.Equal(existing, out.Content)
	return out, nil
}
