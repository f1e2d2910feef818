// Package cssrenderer is the pure templating layer described in spec §4.3:
// given a context record it emits one of five CSS payloads and has no
// side effects of its own. It never touches SessionStore or FontBuilder
// directly — callers populate a Context from whatever state they hold.
package cssrenderer

// Browser identifies which rendering engine a session targets. The
// orchestrator resolves this once per session (useragent.Detect) and it
// never changes afterwards.
type Browser string

const (
	BrowserChrome  Browser = "chrome"
	BrowserFirefox Browser = "firefox"
	BrowserSafari  Browser = "safari"
	BrowserAll     Browser = "all"
)

// Context carries exactly the primitive fields spec §4.3 allows the
// renderer to see: no session, no store, no font builder reference.
type Context struct {
	ID              string
	SID             string
	Step            int
	StepChar        rune
	FontPath        string
	WidthContainers []int
	LeakSelector    string
	Host            string
	HostLeak        string
	Browser         Browser
	Parent          string // "body" or "head"
	Attr            string // attribute carrying the leaked content, e.g. "data-leak"
	IdxMax          int    // static template only: total positions to emit

	// AnimationSteps carries one StepChar/FontPath pair per keyframe, used
	// only by the Firefox animation template, which must ship the whole
	// chain in a single response.
	AnimationSteps []AnimationStep

	// ChainSteps carries one FontPath/unicode-range pair per position,
	// used only by the Safari SFC template.
	ChainSteps []ChainStep
}

// AnimationStep is one keyframe of the Firefox time-sliced chain.
type AnimationStep struct {
	Step     int
	StepChar rune
	FontPath string
}

// ChainStep is one @font-face of the Safari sequential-font-chaining chain.
type ChainStep struct {
	Position     int
	FontPath     string
	UnicodeRange string
}
