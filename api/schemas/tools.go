package schemas

// -- Tool Operation Schemas --

// Operation names a tool operation exposed over the command surface.
type Operation string

const (
	OpPing        Operation = "ping"
	OpListTabs    Operation = "list_tabs"
	OpNavigate    Operation = "navigate"
	OpClick       Operation = "click"
	OpType        Operation = "type"
	OpWait        Operation = "wait"
	OpExtractText Operation = "extract_text"
	OpInspectForm Operation = "inspect_form"
)

// String implements fmt.Stringer.
func (o Operation) String() string { return string(o) }

// Operations returns every operation in the order they are documented.
func Operations() []Operation {
	return []Operation{OpPing, OpListTabs, OpNavigate, OpClick, OpType, OpWait, OpExtractText, OpInspectForm}
}

// ClickParams are the inputs of click.
type ClickParams struct {
	TabID    string `json:"tabId"`
	Selector string `json:"selector"`
	// TimeoutMs bounds the visibility wait. Zero selects the configured default.
	TimeoutMs int `json:"timeoutMs,omitempty"`
}

// TypeParams are the inputs of type.
type TypeParams struct {
	TabID    string `json:"tabId"`
	Selector string `json:"selector"`
	Text     string `json:"text"`
	// Clear defaults to true when omitted.
	Clear     *bool `json:"clear,omitempty"`
	TimeoutMs int   `json:"timeoutMs,omitempty"`
}

// WaitParams are the inputs of wait/check-existence.
type WaitParams struct {
	TabID     string `json:"tabId"`
	Selector  string `json:"selector"`
	TimeoutMs int    `json:"timeoutMs,omitempty"`
	// Visible defaults to true. When false the operation succeeds as soon as the node exists.
	Visible *bool `json:"visible,omitempty"`
}

// ExtractTextParams are the inputs of extract-text.
type ExtractTextParams struct {
	TabID     string `json:"tabId"`
	Selector  string `json:"selector,omitempty"`
	MaxLength int    `json:"maxLength,omitempty"`
}

// InspectFormParams are the inputs of inspect-form.
type InspectFormParams struct {
	TabID        string `json:"tabId"`
	FormSelector string `json:"formSelector,omitempty"`
}

// NavigateParams are the inputs of navigate.
type NavigateParams struct {
	TabID     string `json:"tabId"`
	URL       string `json:"url"`
	TimeoutMs int    `json:"timeoutMs,omitempty"`
}

// ToolResult is the envelope every operation returns. Failures never escape as
// Go errors past the engine boundary; they are folded into Error and ErrorKind.
type ToolResult struct {
	Success   bool      `json:"success"`
	Operation Operation `json:"operation"`
	TabID     string    `json:"tabId,omitempty"`
	// Selector is the original selector or hint supplied by the caller.
	Selector  string      `json:"selector,omitempty"`
	Error     string      `json:"error,omitempty"`
	ErrorKind string      `json:"errorKind,omitempty"`
	Reason    string      `json:"reason,omitempty"`
	Result    interface{} `json:"result,omitempty"`
}

// TabList is the result of list_tabs.
type TabList struct {
	Tabs []TargetInfo `json:"tabs"`
}
