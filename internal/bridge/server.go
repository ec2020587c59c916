// ABOUTME: Local HTTP bridge between player adapters and browser pages
// ABOUTME: Serves the embed host page, the injectable script and their websockets
package bridge

import (
	"context"
	"errors"
	"html/template"
	"net"
	"net/http"
	"regexp"
	"sync"
	texttemplate "text/template"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 5 * time.Second

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// Config holds bridge configuration
type Config struct {
	// Addr is the listen address (default: 127.0.0.1:8931)
	Addr   string
	Logger *zerolog.Logger
}

// Server is the local bridge
type Server struct {
	config   Config
	logger   zerolog.Logger
	router   chi.Router
	upgrader websocket.Upgrader

	embed   *Conn
	sandbox *Conn

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
}

// New creates a bridge; nothing listens until Start
func New(config Config) *Server {
	if config.Addr == "" {
		config.Addr = "127.0.0.1:8931"
	}
	logger := zerolog.Nop()
	if config.Logger != nil {
		logger = config.Logger.With().Str("component", "bridge").Logger()
	}

	s := &Server{
		config: config,
		logger: logger,
		upgrader: websocket.Upgrader{
			// The injected script runs on arbitrary origins
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		embed:   newConn("embed", logger),
		sandbox: newConn("sandbox", logger),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/embed", s.handleEmbedPage)
	r.Get("/embed/{videoID}", s.handleEmbedPage)
	r.Get("/inject.js", s.handleInjectScript)
	r.Get("/ws/embed", s.handleSurface(s.embed))
	r.Get("/ws/sandbox", s.handleSurface(s.sandbox))
	return r
}

// Handler exposes the router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Embed returns the pipe to the streaming embed host page
func (s *Server) Embed() *Conn {
	return s.embed
}

// Sandbox returns the pipe to the injected script
func (s *Server) Sandbox() *Conn {
	return s.sandbox
}

// Start listens and serves in the background
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	s.httpServer = srv
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("bridge listening")

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("bridge stopped")
		}
	}()
	return nil
}

// URL returns the base URL once started
func (s *Server) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return "http://" + s.config.Addr
	}
	return "http://" + s.listener.Addr().String()
}

// Stop shuts the server down and ends both message streams
func (s *Server) Stop() {
	s.mu.Lock()
	srv := s.httpServer
	s.httpServer = nil
	s.mu.Unlock()

	s.embed.Close()
	s.sandbox.Close()

	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("bridge shutdown error")
	}
}

func (s *Server) handleSurface(conn *Conn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Warn().Err(err).Msg("websocket upgrade error")
			return
		}
		conn.attach(ws)
	}
}

type embedPage struct {
	VideoID string
	Origin  string
}

func (s *Server) handleEmbedPage(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoID")
	if videoID != "" && !videoIDPattern.MatchString(videoID) {
		http.Error(w, "invalid video id", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	page := embedPage{VideoID: videoID, Origin: "http://" + r.Host}
	if err := embedTemplate.Execute(w, page); err != nil {
		s.logger.Warn().Err(err).Msg("failed to render embed page")
	}
}

func (s *Server) handleInjectScript(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := injectTemplate.Execute(w, struct{ Host string }{Host: r.Host}); err != nil {
		s.logger.Warn().Err(err).Msg("failed to render inject script")
	}
}

var embedTemplate = template.Must(template.New("embed").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>syncwatch</title>
<style>html,body{margin:0;height:100%;background:#000}iframe{border:0;width:100%;height:100%}</style>
</head>
<body>
<iframe id="player" allow="autoplay; encrypted-media" allowfullscreen
  src="https://www.youtube.com/embed/{{.VideoID}}?enablejsapi=1&autoplay=1&origin={{.Origin}}"></iframe>
<script>
(function () {
  var frame = document.getElementById("player");
  var ws = null;

  function connect() {
    ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws/embed");
    ws.onmessage = function (ev) { frame.contentWindow.postMessage(ev.data, "*"); };
    ws.onclose = function () { setTimeout(connect, 1000); };
  }

  frame.addEventListener("load", function () {
    frame.contentWindow.postMessage(JSON.stringify({ event: "listening", id: "syncwatch" }), "*");
  });

  window.addEventListener("message", function (ev) {
    if (ev.source !== frame.contentWindow || !ws || ws.readyState !== 1) return;
    ws.send(typeof ev.data === "string" ? ev.data : JSON.stringify(ev.data));
  });

  connect();
})();
</script>
</body>
</html>
`))

var injectTemplate = texttemplate.Must(texttemplate.New("inject").Parse(`(function () {
  var endpoint = "ws://{{js .Host}}/ws/sandbox";
  var ws = null;

  function video() { return document.querySelector("video"); }

  function report(type) {
    var v = video();
    if (!ws || ws.readyState !== 1 || !v) return;
    ws.send(JSON.stringify({ type: type, time: v.currentTime }));
  }

  function load(locator) {
    var v = video();
    if (!v) {
      v = document.createElement("video");
      v.controls = true;
      v.style.width = "100%";
      document.body.appendChild(v);
      watch(v);
    }
    v.src = locator;
    v.load();
    v.play();
  }

  function apply(msg) {
    var v = video();
    var payload = msg.payload || {};
    if (msg.type === "LOAD") {
      if (payload.locator) load(payload.locator);
      return;
    }
    if (!v) return;
    if (msg.type === "PLAY") {
      if (typeof payload.position === "number") v.currentTime = payload.position;
      v.play();
    } else if (msg.type === "PAUSE") {
      v.pause();
    } else if (msg.type === "VOLUME" && typeof payload.level === "number") {
      v.volume = payload.level;
    }
  }

  function watch(v) {
    if (!v || v.__syncwatch) return;
    v.__syncwatch = true;
    v.addEventListener("play", function () { report("PLAY"); });
    v.addEventListener("pause", function () { report("PAUSE"); });
    v.addEventListener("seeked", function () { report("SEEK"); });
  }

  function connect() {
    ws = new WebSocket(endpoint);
    ws.onmessage = function (ev) {
      try { apply(JSON.parse(ev.data)); } catch (e) {}
    };
    ws.onclose = function () { setTimeout(connect, 1000); };
  }

  setInterval(function () { watch(video()); report("TIME"); }, 1000);
  watch(video());
  connect();
})();
`))
