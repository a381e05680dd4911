// File: internal/oracle/tools.go
package oracle

import "github.com/xkilldash9x/webpilot/internal/action"

// ParamType is the JSON schema type of a tool parameter.
type ParamType string

const (
	ParamString ParamType = "string"
	ParamNumber ParamType = "number"
)

// Param is one tool argument.
type Param struct {
	Name        string
	Type        ParamType
	Description string
	Enum        []string
}

// Tool is a backend neutral tool declaration.
type Tool struct {
	Name        string
	Description string
	Params      []Param
}

// Required lists every parameter name; all tool arguments are mandatory.
func (t Tool) Required() []string {
	names := make([]string, 0, len(t.Params))
	for _, p := range t.Params {
		names = append(names, p.Name)
	}
	return names
}

func reasoning(what string) Param {
	return Param{
		Name:        "reasoning",
		Type:        ParamString,
		Description: "Human readable explanation of " + what + " for audit purposes",
	}
}

var selectorParam = Param{Name: "selector", Type: ParamString, Description: "CSS selector of the target element"}

// Tools is the fixed action vocabulary offered to the oracle, one tool per action.
var Tools = []Tool{
	{
		Name:        action.NameClick,
		Description: "Clicks the selected element, waits for the interaction to settle and returns the resulting page",
		Params:      []Param{selectorParam, reasoning("what is clicked and why")},
	},
	{
		Name:        action.NameType,
		Description: "Replaces the value of an input field with the given text",
		Params: []Param{
			selectorParam,
			{Name: "value", Type: ParamString, Description: "Text to fill in"},
			reasoning("what is typed and why"),
		},
	},
	{
		Name:        action.NameSelect,
		Description: "Selects an option of a dropdown menu by value or label",
		Params: []Param{
			selectorParam,
			{Name: "value", Type: ParamString, Description: "Option value or label to select"},
			reasoning("what is selected and why"),
		},
	},
	{
		Name:        action.NameNavigate,
		Description: "Loads a URL in the current page and waits for the network to become idle",
		Params: []Param{
			{Name: "url", Type: ParamString, Description: "Absolute URL to load"},
			reasoning("where to go and why"),
		},
	},
	{
		Name:        action.NameScroll,
		Description: "Scrolls the page one step up or down",
		Params: []Param{
			{Name: "direction", Type: ParamString, Description: "Scroll direction", Enum: []string{"up", "down"}},
			reasoning("why scrolling is needed"),
		},
	},
	{
		Name:        action.NameWait,
		Description: "Waits for the given number of seconds before looking at the page again",
		Params: []Param{
			{Name: "seconds", Type: ParamNumber, Description: "Seconds to wait"},
			reasoning("what is being waited for"),
		},
	},
	{
		Name:        action.NameGetPageContent,
		Description: "Returns the current cleaned page content without interacting",
		Params:      []Param{reasoning("why the page is read again")},
	},
	{
		Name:        action.NameScreenshot,
		Description: "Stores a screenshot of the current page for the job record",
		Params:      []Param{reasoning("why a screenshot is useful")},
	},
	{
		Name:        action.NameEvaluate,
		Description: "Evaluates a JavaScript expression in the page and returns its JSON result",
		Params: []Param{
			{Name: "code", Type: ParamString, Description: "JavaScript expression to evaluate"},
			reasoning("what the script does and why"),
		},
	},
	{
		Name:        action.NameFinish,
		Description: "Ends the task and reports the final answer to the user",
		Params: []Param{
			{Name: "result", Type: ParamString, Description: "Final answer for the user's goal"},
			reasoning("why the goal is met"),
		},
	},
}

// SystemPrompt frames every job conversation.
const SystemPrompt = `You are a browser automation agent. You control one browser page and work towards the user's goal one action at a time.

Each user or tool message contains the current page as cleaned HTML. Use it to choose CSS selectors; prefer ids, names, data-testid and aria attributes over positional selectors.

Rules:
- Call exactly one tool per turn and always fill in the reasoning argument.
- When an action fails, read the error and the page content and try a different approach.
- Do not invent page content. Only report what the page shows.
- When the goal is achieved, call finish with a concise answer. If the goal cannot be achieved, call finish and explain why.`
