// Copyright 2022 Harald Albrecht.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

/*
Package server runs an HTTP server for an SPA's static build output. A Server
first determines the directory to serve, then binds its listening socket and
serves until its context gets cancelled, finally shutting down gracefully.
*/
package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/thediveo/spadist"
	"github.com/thediveo/spadist/internal/config"
)

// Server serves a single SPA from a directory.
type Server struct {
	cfg config.Config
	log logrus.FieldLogger

	mu        sync.Mutex
	listener  net.Listener
	ready     chan struct{}
	readyOnce sync.Once
}

// Option sets optional properties of a Server.
type Option func(*Server)

// WithLogger sets the logger to use instead of logrus' standard logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Server) {
		s.log = log
	}
}

// New returns a new Server for the specified configuration. The Server doesn't
// touch the file system nor binds any socket until Run is called.
func New(cfg config.Config, opts ...Option) *Server {
	s := &Server{
		cfg:   cfg,
		log:   logrus.StandardLogger(),
		ready: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ready returns a channel that gets closed as soon as the Server has finished
// starting: either it is listening, or Run failed to start it. Use Addr to
// tell both situations apart.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

func (s *Server) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

// Addr returns the address the Server is listening on, or nil if not (yet)
// listening.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Run serves until the passed context is cancelled, then shuts down
// gracefully, giving in-flight requests the configured time to finish. Run
// returns nil after a graceful shutdown; it returns an error when the server
// cannot be started, such as when the port is already in use.
func (s *Server) Run(ctx context.Context) error {
	defer s.markReady()
	rootdir := s.rootDir()
	fsys := os.DirFS(rootdir)
	var opts []spadist.SPAHandlerOption
	if s.cfg.RewriteBase {
		opts = append(opts, spadist.WithBaseRewriting())
	}
	handler := spadist.NewSPAHandler(fsys, s.cfg.Index, opts...)
	if err := s.checkIndex(fsys, handler.Resolver().Index()); err != nil {
		return err
	}

	l, err := net.Listen("tcp", ":"+strconv.Itoa(s.cfg.Port))
	if err != nil {
		return fmt.Errorf("cannot listen on port %d: %w", s.cfg.Port, err)
	}
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()

	srv := &http.Server{
		Handler: s.logRequests(handler),
	}
	port := l.Addr().(*net.TCPAddr).Port
	s.log.Infof("Serving at http://localhost:%d", port)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(l)
	}()
	s.markReady()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	s.log.Info("Stopping server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		// Grace period is over, so cut off the remaining connections.
		s.log.Warnf("forcing shutdown: %s", err)
		_ = srv.Close()
	}
	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// rootDir returns the absolute path of the directory to serve: the configured
// root directory if it exists, otherwise the current working directory.
// Relative root directories are taken relative to the current working
// directory at the time of calling rootDir.
func (s *Server) rootDir() string {
	if info, err := os.Stat(s.cfg.Root); err == nil && info.IsDir() {
		s.log.Infof("Serving from %s directory", s.cfg.Root)
		return absDir(s.cfg.Root)
	}
	s.log.Warnf("'%s' directory not found. Serving current directory.", s.cfg.Root)
	return absDir(".")
}

func absDir(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return dir
}

// checkIndex warns about a missing index document, as the SPA fallback will
// then answer with 404s. If the configuration requires the index document to
// be present, an error is returned instead.
func (s *Server) checkIndex(fsys fs.FS, index string) error {
	info, err := fs.Stat(fsys, index)
	if err == nil && !info.IsDir() {
		return nil
	}
	if s.cfg.RequireIndex {
		return fmt.Errorf("index document %q missing", index)
	}
	s.log.Warnf("index document %q missing, unknown paths will be answered with 404", index)
	return nil
}

// statusRecorder remembers the status code written to the response.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// logRequests logs requests at debug level; at all other levels the handler is
// returned unwrapped.
func (s *Server) logRequests(h http.Handler) http.Handler {
	if !s.debugEnabled() {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, uri := r.Method, r.URL.RequestURI()
		rec := &statusRecorder{ResponseWriter: w}
		h.ServeHTTP(rec, r)
		s.log.WithFields(logrus.Fields{
			"remote": r.RemoteAddr,
			"status": rec.status,
		}).Debugf("%s %s", method, uri)
	})
}

func (s *Server) debugEnabled() bool {
	switch l := s.log.(type) {
	case *logrus.Logger:
		return l.IsLevelEnabled(logrus.DebugLevel)
	case *logrus.Entry:
		return l.Logger.IsLevelEnabled(logrus.DebugLevel)
	}
	return false
}
