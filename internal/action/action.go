// File: internal/action/action.go
package action

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Tool names understood by the executor, in the order they are offered to the oracle.
const (
	NameClick          = "click"
	NameType           = "type"
	NameSelect         = "select"
	NameNavigate       = "navigate"
	NameScroll         = "scroll"
	NameWait           = "wait"
	NameGetPageContent = "getPageContent"
	NameScreenshot     = "screenshot"
	NameEvaluate       = "evaluate"
	NameFinish         = "finish"
)

// Names lists the complete action vocabulary.
func Names() []string {
	return []string{
		NameClick, NameType, NameSelect, NameNavigate, NameScroll,
		NameWait, NameGetPageContent, NameScreenshot, NameEvaluate, NameFinish,
	}
}

// Action is one request from the oracle. The set of implementations is closed;
// Unknown and Invalid cover tool calls that do not map onto the vocabulary.
type Action interface {
	Name() string
	action()
}

type Click struct{ Selector string }

type Type struct{ Selector, Value string }

type Select struct{ Selector, Value string }

type Navigate struct{ URL string }

// Scroll only recognizes "up" and "down".
type Scroll struct{ Direction string }

type Wait struct{ Seconds float64 }

type GetPageContent struct{}

type Screenshot struct{}

type Evaluate struct{ Code string }

// Finish ends the job successfully with Result as its output.
type Finish struct{ Result string }

// Unknown is a tool call whose name is outside the vocabulary.
type Unknown struct{ ToolName string }

// Invalid is a known tool called with missing or malformed arguments.
type Invalid struct {
	ToolName string
	Reason   string
}

func (Click) Name() string          { return NameClick }
func (Type) Name() string           { return NameType }
func (Select) Name() string         { return NameSelect }
func (Navigate) Name() string       { return NameNavigate }
func (Scroll) Name() string         { return NameScroll }
func (Wait) Name() string           { return NameWait }
func (GetPageContent) Name() string { return NameGetPageContent }
func (Screenshot) Name() string     { return NameScreenshot }
func (Evaluate) Name() string       { return NameEvaluate }
func (Finish) Name() string         { return NameFinish }
func (u Unknown) Name() string      { return u.ToolName }
func (i Invalid) Name() string      { return i.ToolName }

func (Click) action()          {}
func (Type) action()           {}
func (Select) action()         {}
func (Navigate) action()       {}
func (Scroll) action()         {}
func (Wait) action()           {}
func (GetPageContent) action() {}
func (Screenshot) action()     {}
func (Evaluate) action()       {}
func (Finish) action()         {}
func (Unknown) action()        {}
func (Invalid) action()        {}

// Parse maps a tool call onto the action vocabulary. It never fails: names
// outside the vocabulary yield Unknown and bad arguments yield Invalid.
func Parse(name string, args map[string]interface{}) Action {
	p := argParser{args: args}
	var a Action
	switch name {
	case NameClick:
		a = Click{Selector: p.requireString("selector")}
	case NameType:
		a = Type{Selector: p.requireString("selector"), Value: p.requireString("value")}
	case NameSelect:
		a = Select{Selector: p.requireString("selector"), Value: p.requireString("value")}
	case NameNavigate:
		a = Navigate{URL: p.requireString("url")}
	case NameScroll:
		a = Scroll{Direction: strings.ToLower(p.requireString("direction"))}
	case NameWait:
		a = Wait{Seconds: p.requireSeconds("seconds")}
	case NameGetPageContent:
		a = GetPageContent{}
	case NameScreenshot:
		a = Screenshot{}
	case NameEvaluate:
		a = Evaluate{Code: p.requireString("code")}
	case NameFinish:
		a = Finish{Result: p.requireString("result")}
	default:
		return Unknown{ToolName: name}
	}
	if p.err != "" {
		return Invalid{ToolName: name, Reason: p.err}
	}
	return a
}

// Reasoning extracts the audit explanation every tool call is asked to carry.
func Reasoning(args map[string]interface{}) string {
	s, _ := args["reasoning"].(string)
	return s
}

// Describe renders a for log lines, e.g. click(#buy).
func Describe(a Action) string {
	switch v := a.(type) {
	case Click:
		return fmt.Sprintf("click(%s)", v.Selector)
	case Type:
		return fmt.Sprintf("type(%s, %q)", v.Selector, v.Value)
	case Select:
		return fmt.Sprintf("select(%s, %q)", v.Selector, v.Value)
	case Navigate:
		return fmt.Sprintf("navigate(%s)", v.URL)
	case Scroll:
		return fmt.Sprintf("scroll(%s)", v.Direction)
	case Wait:
		return fmt.Sprintf("wait(%s)", formatSeconds(v.Seconds))
	case Evaluate:
		return "evaluate(...)"
	case Finish:
		return "finish(...)"
	case Invalid:
		return fmt.Sprintf("%s(<invalid: %s>)", v.ToolName, v.Reason)
	default:
		return a.Name() + "()"
	}
}

// argParser records the first argument problem it sees.
type argParser struct {
	args map[string]interface{}
	err  string
}

func (p *argParser) fail(format string, a ...interface{}) {
	if p.err == "" {
		p.err = fmt.Sprintf(format, a...)
	}
}

func (p *argParser) requireString(key string) string {
	raw, ok := p.args[key]
	if !ok || raw == nil {
		p.fail("missing required argument %q", key)
		return ""
	}
	s, ok := raw.(string)
	if !ok {
		p.fail("argument %q must be a string, got %T", key, raw)
		return ""
	}
	return s
}

func (p *argParser) requireSeconds(key string) float64 {
	raw, ok := p.args[key]
	if !ok || raw == nil {
		p.fail("missing required argument %q", key)
		return 0
	}
	var secs float64
	switch v := raw.(type) {
	case float64:
		secs = v
	case float32:
		secs = float64(v)
	case int:
		secs = float64(v)
	case int64:
		secs = float64(v)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			p.fail("argument %q must be a number, got %q", key, v)
			return 0
		}
		secs = f
	default:
		p.fail("argument %q must be a number, got %T", key, raw)
		return 0
	}
	if math.IsNaN(secs) || math.IsInf(secs, 0) {
		p.fail("argument %q must be a finite number", key)
		return 0
	}
	if secs < 0 {
		p.fail("argument %q must not be negative", key)
		return 0
	}
	return secs
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', -1, 64)
}
