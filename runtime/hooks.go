package runtime

import "go.uber.org/zap"

// Hooks are the host callback slots wired into an instance at creation:
// an abort handler and four leveled log sinks. Script code reaches these
// through registered host functions; the runtime itself uses them for
// unit diagnostics. Every slot has a fallback, so a zero Hooks is valid.
type Hooks struct {
	// Abort is invoked on unrecoverable script conditions. The default
	// logs at error level; it never panics the host.
	Abort func(msg string)

	Info     func(msg string)
	Warn     func(msg string)
	Critical func(msg string)
	Debug    func(msg string)
}

// normalized fills unset slots with the package-logger fallbacks.
func (h Hooks) normalized() Hooks {
	log := Logger()
	if h.Abort == nil {
		h.Abort = func(msg string) { log.Error("script abort", zap.String("msg", msg)) }
	}
	if h.Info == nil {
		h.Info = func(msg string) { log.Info(msg) }
	}
	if h.Warn == nil {
		h.Warn = func(msg string) { log.Warn(msg) }
	}
	if h.Critical == nil {
		h.Critical = func(msg string) { log.Error(msg) }
	}
	if h.Debug == nil {
		h.Debug = func(msg string) { log.Debug(msg) }
	}
	return h
}
