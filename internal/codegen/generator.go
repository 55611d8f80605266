package codegen

import (
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"webreplay/internal/logging"
	"webreplay/internal/recording"
	"webreplay/internal/selector"
)

// GeneratedSource is one emitted standalone replay program.
type GeneratedSource struct {
	SessionID string
	Code      string
	Iteration int
}

// Generator turns a recording into a self-contained Go program that
// replays it with chromedp. The program embeds each step's candidate
// queries precompiled by the selector package, in canonical priority
// order, so generated code and live replay resolve elements with
// identical semantics.
type Generator struct {
	// Headless controls the generated program's browser mode.
	Headless bool

	logger *logging.Logger
}

func NewGenerator(headless bool) *Generator {
	return &Generator{
		Headless: headless,
		logger:   logging.NewComponentLogger("CodeGenerator"),
	}
}

// stepView is the template's view of one action.
type stepView struct {
	Step       int
	Type       string
	URL        string
	Text       string
	DeltaX     float64
	DeltaY     float64
	WaitMs     int
	Candidates []candidateView
}

type candidateView struct {
	Kind    string
	Query   string
	ByXPath bool
}

// Generate emits source for the recording. iteration is 1-based; later
// iterations get progressively larger timeouts and inter-step settle
// delays, the only knobs that help against the timing failures a
// verification run can surface.
func (g *Generator) Generate(rec *recording.SessionRecording, iteration int) (*GeneratedSource, error) {
	if rec == nil {
		return nil, fmt.Errorf("nil recording")
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	if iteration < 1 {
		iteration = 1
	}

	steps := make([]stepView, 0, len(rec.Actions))
	for _, action := range rec.Actions {
		view := stepView{
			Step:   action.Step,
			Type:   string(action.Type),
			URL:    action.Params.URL,
			Text:   action.Params.Text,
			DeltaX: action.Params.DeltaX,
			DeltaY: action.Params.DeltaY,
			WaitMs: int(action.Params.DurationSeconds * 1000),
		}
		if action.Params.SecretKey != "" {
			return nil, fmt.Errorf("step %d: recording uses secret %q, generated source cannot embed secrets",
				action.Step, action.Params.SecretKey)
		}
		for _, c := range selector.SortCandidates(action.SelectorCandidates) {
			query, byXPath, err := c.Query()
			if err != nil {
				return nil, fmt.Errorf("step %d: %w", action.Step, err)
			}
			view.Candidates = append(view.Candidates, candidateView{
				Kind:    string(c.Kind),
				Query:   query,
				ByXPath: byXPath,
			})
		}
		steps = append(steps, view)
	}

	needsInput := false
	for _, s := range steps {
		if s.Type == string(recording.ActionScroll) {
			needsInput = true
		}
	}

	data := map[string]any{
		"NeedsInput":     needsInput,
		"SessionID":      rec.SessionID,
		"Task":           rec.Task,
		"InitialURL":     rec.InitialURL,
		"Headless":       g.Headless,
		"Steps":          steps,
		"ResolveTimeout": 10 * iteration,
		"ActionTimeout":  30 * iteration,
		"SettleDelayMs":  250 * (iteration - 1),
	}

	var sb strings.Builder
	if err := sourceTemplate.Execute(&sb, data); err != nil {
		return nil, fmt.Errorf("render source: %w", err)
	}

	g.logger.Info("Generated replay source for %s (iteration %d, %d steps)",
		rec.SessionID, iteration, len(steps))
	return &GeneratedSource{
		SessionID: rec.SessionID,
		Code:      sb.String(),
		Iteration: iteration,
	}, nil
}

var sourceTemplate = template.Must(template.New("replay").Funcs(template.FuncMap{
	"quote": strconv.Quote,
}).Parse(`// Code generated replay for session {{quote .SessionID}}. DO NOT EDIT.
{{- if .Task}}
// Task: {{.Task}}
{{- end}}
package main

import (
	"context"
	"fmt"
	"os"
	"time"

{{- if .NeedsInput}}
	"github.com/chromedp/cdproto/input"
{{- end}}
	"github.com/chromedp/chromedp"
)

type candidate struct {
	kind    string
	query   string
	byXPath bool
}

func opt(c candidate) chromedp.QueryOption {
	if c.byXPath {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

// resolve tries candidates strictly in the order given; the slice is
// already sorted by reliability.
func resolve(ctx context.Context, cands []candidate) (candidate, error) {
	deadline := time.Now().Add({{.ResolveTimeout}} * time.Second)
	for time.Now().Before(deadline) {
		for _, c := range cands {
			probeCtx, cancel := context.WithTimeout(ctx, 1500*time.Millisecond)
			err := chromedp.Run(probeCtx, chromedp.WaitVisible(c.query, opt(c)))
			cancel()
			if err == nil {
				return c, nil
			}
		}
		time.Sleep(200 * time.Millisecond)
	}
	kinds := make([]string, len(cands))
	for i, c := range cands {
		kinds[i] = c.kind
	}
	return candidate{}, fmt.Errorf("no candidate resolved: %v", kinds)
}

func step(ctx context.Context, n int, fn func(context.Context) error) {
	stepCtx, cancel := context.WithTimeout(ctx, {{.ActionTimeout}}*time.Second)
	defer cancel()
	if err := fn(stepCtx); err != nil {
		fmt.Fprintf(os.Stderr, "step %d failed: %v\n", n, err)
		os.Exit(1)
	}
	fmt.Printf("step %d ok\n", n)
{{- if gt .SettleDelayMs 0}}
	time.Sleep({{.SettleDelayMs}} * time.Millisecond)
{{- end}}
}

func main() {
	execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", {{.Headless}}),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), execOpts...)
	defer allocCancel()
	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	if err := chromedp.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "browser start failed: %v\n", err)
		os.Exit(1)
	}

{{- range .Steps}}

	// step {{.Step}}: {{.Type}}
{{- if eq .Type "navigate"}}
	step(ctx, {{.Step}}, func(c context.Context) error {
		return chromedp.Run(c, chromedp.Navigate({{quote .URL}}))
	})
{{- else if eq .Type "wait"}}
	step(ctx, {{.Step}}, func(c context.Context) error {
		time.Sleep({{.WaitMs}} * time.Millisecond)
		return nil
	})
{{- else if eq .Type "done"}}
	fmt.Printf("step {{.Step}} ok (done)\n")
	fmt.Println("replay verified")
	return
{{- else}}
	step(ctx, {{.Step}}, func(c context.Context) error {
		target, err := resolve(c, []candidate{
{{- range .Candidates}}
			{kind: {{quote .Kind}}, query: {{quote .Query}}, byXPath: {{.ByXPath}}},
{{- end}}
		})
		if err != nil {
			return err
		}
{{- if eq .Type "click"}}
		return chromedp.Run(c, chromedp.Click(target.query, opt(target)))
{{- else if eq .Type "fill"}}
		if err := chromedp.Run(c,
			chromedp.Clear(target.query, opt(target)),
			chromedp.SendKeys(target.query, {{quote .Text}}, opt(target)),
		); err != nil {
			return err
		}
		var got string
		if err := chromedp.Run(c, chromedp.Value(target.query, &got, opt(target))); err != nil {
			return err
		}
		if got != {{quote .Text}} {
			return fmt.Errorf("field value mismatch after fill")
		}
		return nil
{{- else if eq .Type "scroll"}}
		wheel := func(p *input.DispatchMouseEventParams) *input.DispatchMouseEventParams {
			return p.WithDeltaX({{.DeltaX}}).WithDeltaY({{.DeltaY}})
		}
		if err := chromedp.Run(c, chromedp.ScrollIntoView(target.query, opt(target))); err != nil {
			return err
		}
		return chromedp.Run(c, chromedp.MouseEvent(input.MouseWheel, 400, 300, wheel))
{{- else if eq .Type "extract"}}
		var content string
		if err := chromedp.Run(c, chromedp.Text(target.query, &content, opt(target))); err != nil {
			return err
		}
		if content == "" {
			fmt.Fprintf(os.Stderr, "step {{.Step}} extract returned empty content\n")
		}
		return nil
{{- end}}
	})
{{- end}}
{{- end}}

	fmt.Println("replay verified")
}
`))
