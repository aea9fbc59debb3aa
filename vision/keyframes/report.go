package keyframes

import (
	"fmt"
	"image/color"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gopkg.in/src-d/go-billy.v4"
)

// KeyframeRecord describes how a keyframe was reached.
type KeyframeRecord struct {
	Index int
	// Previous is the keyframe the index was compared against, -1 for frame 0.
	Previous int
	// Score is the score that stopped the scan at Index.
	Score float64
	// Comparisons is the number of candidates evaluated against Previous.
	Comparisons int
}

// ScoreStats summarizes every evaluated comparison score.
type ScoreStats struct {
	Count  int
	Mean   float64
	Median float64
	Min    float64
	Max    float64
}

// Report is the summary of a selection and pruning run.
type Report struct {
	RunID         string
	Mode          Mode
	Threshold     float64
	N             int
	Keyframes     []KeyframeRecord
	Removed       int
	AlreadyAbsent int
	DryRun        bool
	Resumed       bool
	Scores        ScoreStats
	Elapsed       time.Duration
}

// NewReport builds the report of a selection. pruned is nil when nothing was deleted.
func NewReport(runID string, mode Mode, sel *Selection, pruned *PruneResult) (*Report, error) {
	if sel == nil {
		return nil, errors.New("no selection to report")
	}
	r := &Report{
		RunID:     runID,
		Mode:      mode,
		Threshold: sel.Threshold,
		N:         sel.N,
		Keyframes: keyframeRecords(sel.Keyframes, sel.Comparisons),
		DryRun:    pruned == nil,
		Resumed:   sel.Resumed,
		Elapsed:   sel.Elapsed,
	}
	if pruned != nil {
		r.Removed = len(pruned.Removed)
		r.AlreadyAbsent = len(pruned.AlreadyAbsent)
	}
	scores, err := scoreStats(sel.Comparisons)
	if err != nil {
		return nil, err
	}
	r.Scores = scores
	return r, nil
}

func keyframeRecords(keyframes []int, comparisons []Comparison) []KeyframeRecord {
	records := make([]KeyframeRecord, 0, len(keyframes))
	for i, k := range keyframes {
		rec := KeyframeRecord{Index: k, Previous: -1}
		if i > 0 {
			rec.Previous = keyframes[i-1]
			for _, c := range comparisons {
				if c.Anchor != rec.Previous {
					continue
				}
				rec.Comparisons++
				if c.Candidate == k {
					rec.Score = c.Score
				}
			}
		}
		records = append(records, rec)
	}
	return records
}

func scoreStats(comparisons []Comparison) (ScoreStats, error) {
	if len(comparisons) == 0 {
		return ScoreStats{}, nil
	}
	data := make(stats.Float64Data, len(comparisons))
	for i, c := range comparisons {
		data[i] = c.Score
	}
	mean, err1 := stats.Mean(data)
	median, err2 := stats.Median(data)
	minScore, err3 := stats.Min(data)
	maxScore, err4 := stats.Max(data)
	if err := multierr.Combine(err1, err2, err3, err4); err != nil {
		return ScoreStats{}, errors.Wrap(err, "cannot summarize scores")
	}
	return ScoreStats{Count: len(data), Mean: mean, Median: median, Min: minScore, Max: maxScore}, nil
}

// Kept returns the number of keyframes.
func (r *Report) Kept() int {
	return len(r.Keyframes)
}

// String renders the keyframe table followed by the run summary.
func (r *Report) String() string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"#", "Keyframe", "Previous", "Score", "Comparisons"})
	for i, k := range r.Keyframes {
		prev, score := "", ""
		if k.Previous >= 0 {
			prev = fmt.Sprintf("%d", k.Previous)
			score = fmt.Sprintf("%.4f", k.Score)
		}
		t.AppendRow(table.Row{i, k.Index, prev, score, k.Comparisons})
	}
	t.AppendFooter(table.Row{"", "", "", "kept", r.Kept()})

	var sb strings.Builder
	sb.WriteString(t.Render())
	sb.WriteString("\n")
	if r.RunID != "" {
		fmt.Fprintf(&sb, "run:         %s\n", r.RunID)
	}
	fmt.Fprintf(&sb, "mode:        %s (threshold %g)\n", r.Mode, r.Threshold)
	fmt.Fprintf(&sb, "frames:      %d\n", r.N)
	fmt.Fprintf(&sb, "kept:        %d\n", r.Kept())
	if r.DryRun {
		fmt.Fprintf(&sb, "removed:     none (dry run, %d planned)\n", r.N-r.Kept())
	} else {
		fmt.Fprintf(&sb, "removed:     %d (%d already absent)\n", r.Removed, r.AlreadyAbsent)
	}
	if r.Scores.Count > 0 {
		fmt.Fprintf(&sb, "scores:      n=%d mean=%.4f median=%.4f min=%.4f max=%.4f\n",
			r.Scores.Count, r.Scores.Mean, r.Scores.Median, r.Scores.Min, r.Scores.Max)
	}
	if r.Resumed {
		sb.WriteString("resumed:     from checkpoint\n")
	}
	fmt.Fprintf(&sb, "elapsed:     %s\n", r.Elapsed.Round(time.Millisecond))
	return sb.String()
}

// ScorePlot plots every comparison score against the candidate index, with the keyframes
// highlighted and the threshold as a horizontal line.
func ScorePlot(sel *Selection) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "overlap score"
	p.X.Label.Text = "candidate frame"
	p.Y.Label.Text = "score"

	pts := make(plotter.XYs, len(sel.Comparisons))
	for i, c := range sel.Comparisons {
		pts[i] = plotter.XY{X: float64(c.Candidate), Y: c.Score}
	}
	if len(pts) > 0 {
		scatter, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, err
		}
		scatter.GlyphStyle.Radius = vg.Points(2)
		p.Add(scatter)
	}

	records := keyframeRecords(sel.Keyframes, sel.Comparisons)
	kfPts := make(plotter.XYs, 0, len(records))
	for _, rec := range records {
		if rec.Previous < 0 {
			continue
		}
		kfPts = append(kfPts, plotter.XY{X: float64(rec.Index), Y: rec.Score})
	}
	if len(kfPts) > 0 {
		kfScatter, err := plotter.NewScatter(kfPts)
		if err != nil {
			return nil, err
		}
		kfScatter.GlyphStyle.Color = color.RGBA{R: 220, A: 255}
		kfScatter.GlyphStyle.Radius = vg.Points(3)
		p.Add(kfScatter)
		p.Legend.Add("keyframe", kfScatter)
	}

	line, err := plotter.NewLine(plotter.XYs{
		{X: 0, Y: sel.Threshold},
		{X: float64(max(sel.N-1, 1)), Y: sel.Threshold},
	})
	if err != nil {
		return nil, err
	}
	line.Color = color.RGBA{B: 200, A: 255}
	line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(line)
	p.Legend.Add("threshold", line)
	return p, nil
}

// WriteScorePlot renders ScorePlot as a png to name on fs.
func WriteScorePlot(fs billy.Filesystem, name string, sel *Selection) (err error) {
	p, err := ScorePlot(sel)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(10*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return err
	}
	f, err := fs.Create(name)
	if err != nil {
		return errors.Wrapf(err, "cannot create %q", name)
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	_, err = wt.WriteTo(f)
	return err
}
