// File: cmd/agent_replay.go
package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/vedit/internal/agent"
	"github.com/xkilldash9x/vedit/internal/agent/memhost"
	"github.com/xkilldash9x/vedit/internal/bridge"
	"github.com/xkilldash9x/vedit/internal/observability"
)

// replayStep is one line of a replay script. Exactly one of Message, Event,
// Mutations or Advance is expected per line.
type replayStep struct {
	// Message is an inbound parent message envelope.
	Message json.RawMessage `json:"message,omitempty"`

	// Event is mouseover, mouseout, click, scroll, resize, navigate or
	// layout. Pointer events and layout pick their target by Source (a
	// data-source-location value) or by Tag, with Index choosing among
	// matches.
	Event  string `json:"event,omitempty"`
	Source string `json:"source,omitempty"`
	Tag    string `json:"tag,omitempty"`
	Index  int    `json:"index,omitempty"`
	URL    string `json:"url,omitempty"`
	// Rect sets the target's layout box for a layout event.
	Rect *agent.Rect `json:"rect,omitempty"`
	// Viewport replaces the viewport before a scroll or resize event.
	Viewport *agent.Viewport `json:"viewport,omitempty"`

	Mutations []agent.Mutation `json:"mutations,omitempty"`

	// Advance moves the clock, running due deferred work, e.g. "50ms".
	Advance string `json:"advance,omitempty"`
}

// replayDrain is how far the clock moves after the last step so pending
// repositions flush.
const replayDrain = time.Second

func newAgentReplayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agent-replay <page.html> <script.jsonl>",
		Short: "Replay an editor session against a recorded page without a browser",
		Long: `Loads a recorded page into an in-memory document, runs the visual edit agent
on it, and feeds it the inbound messages and pointer events of a JSON-lines
script. Every message the agent posts to the parent frame is printed as one
JSON line.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			page, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open page: %w", err)
			}
			defer page.Close()
			script, err := os.Open(args[1])
			if err != nil {
				return fmt.Errorf("open script: %w", err)
			}
			defer script.Close()

			opts := bridge.OptionsFromConfig(cfg.Agent()).Agent
			return runReplay(cmd.Context(), observability.GetLogger(), page, script, cmd.OutOrStdout(), opts)
		},
	}
}

func runReplay(ctx context.Context, logger *zap.Logger, page, script io.Reader, out io.Writer, opts agent.Options) error {
	doc, err := memhost.Parse(page, true)
	if err != nil {
		return fmt.Errorf("parse page: %w", err)
	}
	outbox := &memhost.Outbox{}
	timers := &memhost.Timers{}
	ctrl, err := agent.Start(doc, outbox, timers, logger.Named("replay"), opts)
	if err != nil {
		return err
	}

	printed := 0
	flush := func() error {
		msgs := outbox.Messages()
		for _, m := range msgs[printed:] {
			if _, err := fmt.Fprintf(out, "%s\n", m); err != nil {
				return err
			}
		}
		printed = len(msgs)
		return nil
	}
	if err := flush(); err != nil {
		return err
	}

	sc := bufio.NewScanner(script)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var step replayStep
		if err := json.UnmarshalFromString(text, &step); err != nil {
			return fmt.Errorf("script line %d: %w", line, err)
		}
		if err := applyStep(ctrl, doc, timers, step); err != nil {
			return fmt.Errorf("script line %d: %w", line, err)
		}
		if err := flush(); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read script: %w", err)
	}

	timers.Advance(replayDrain)
	return flush()
}

func applyStep(ctrl *agent.Controller, doc *memhost.Document, timers *memhost.Timers, step replayStep) error {
	switch {
	case len(step.Message) > 0:
		msg, err := agent.ParseMessage(step.Message)
		if err != nil {
			return err
		}
		ctrl.HandleMessage(msg)
	case step.Advance != "":
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return fmt.Errorf("advance: %w", err)
		}
		timers.Advance(d)
	case len(step.Mutations) > 0:
		ctrl.HandleMutations(step.Mutations)
	case step.Event != "":
		return applyEvent(ctrl, doc, step)
	default:
		return fmt.Errorf("step has no message, event, mutations or advance")
	}
	return nil
}

func applyEvent(ctrl *agent.Controller, doc *memhost.Document, step replayStep) error {
	switch step.Event {
	case "mouseout":
		ctrl.HandleMouseOut()
	case "scroll", "resize":
		if step.Viewport != nil {
			doc.SetViewport(*step.Viewport)
		}
		if step.Event == "scroll" {
			ctrl.HandleScroll()
		} else {
			ctrl.HandleResize()
		}
	case "navigate":
		ctrl.HandleNavigation(step.URL)
	case "mouseover", "click", "layout":
		el, err := replayTarget(doc, step)
		if err != nil {
			return err
		}
		switch step.Event {
		case "mouseover":
			ctrl.HandleMouseOver(agent.PointerEvent{Target: el})
		case "click":
			ctrl.HandleClick(agent.PointerEvent{Target: el})
		default:
			if step.Rect == nil {
				return fmt.Errorf("layout event needs a rect")
			}
			doc.SetRect(el, *step.Rect)
		}
	default:
		return fmt.Errorf("unknown event %q", step.Event)
	}
	return nil
}

func replayTarget(doc *memhost.Document, step replayStep) (*memhost.Element, error) {
	var els []*memhost.Element
	switch {
	case step.Source != "":
		els = doc.Find(agent.Query{Attr: agent.AttrSourceLocation, Value: step.Source})
	case step.Tag != "":
		els = doc.ByTag(strings.ToLower(step.Tag))
	default:
		return nil, fmt.Errorf("%s event needs a source or tag", step.Event)
	}
	if step.Index < 0 || step.Index >= len(els) {
		return nil, fmt.Errorf("%s event: no target at index %d (%d matches)", step.Event, step.Index, len(els))
	}
	return els[step.Index], nil
}
