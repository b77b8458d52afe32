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

package spadist

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
)

// ForwardedPrefixHeader, if present, specifies the prefix that need to be
// preprended to the request's URI path in order to learn the original path
// when hitting the path rewriting proxy.
const ForwardedPrefixHeader = "X-Forwarded-Prefix"

// ForwardedUriHeader, if present, specifies the original URI (or sometimes only
// the original URI path) of a request when hitting the first path rewriting
// proxy.
const ForwardedUriHeader = "X-Forwarded-Uri"

// AllowedMethods lists the HTTP methods an SPAHandler responds to; all other
// methods get a 501.
const AllowedMethods = "GET, HEAD"

// baseRe matches the base element in the index document in order to allow us
// to dynamically rewrite the base the SPA is served from.
//
// Please note: "*?" instead of "*" ensures that our irregular expression
// doesn't get too greedy, gobbling much more than it should until the last(!)
// empty element.
var baseRe = regexp.MustCompile(`(<base href=").*?("\s*/>)`)

// SPAHandler implements an http.Handler that serves the files and directories
// found in an fs.FS, and the index document for every GET request path that
// does not exist in the fs. This way, client-side routers get to see their
// routes instead of 404s when users bookmark or reload them.
type SPAHandler struct {
	resolver          *Resolver     // maps request paths onto fs resources.
	fs                fs.FS         // the FS to serve static resources from.
	staticfileHandler http.Handler  // FS adapted to http's file serving handler needs.
	rewriteBase       bool          // adjust the index document's base element?
	indexRewriter     IndexRewriter // optional user function to rewrite the index document.
}

// NewSPAHandler returns a new HTTP handler serving static resources from the
// specified fs. It serves the index resource instead whenever a GET request
// path does not exist on the specified fs. The index resource should be
// specified as an unrooted, slash-separated path+name; NewSPAHandler will
// sanitize it anyway.
//
// In order to serve the static resources from a directory on the OS file
// system, use os.DirFS:
//
//	h := NewSPAHandler(os.DirFS("dist"), "index.html")
func NewSPAHandler(fsys fs.FS, index string, opts ...SPAHandlerOption) *SPAHandler {
	h := &SPAHandler{
		resolver:          NewResolver(fsys, index),
		fs:                fsys,
		staticfileHandler: http.FileServer(http.FS(fsys)),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SPAHandlerOption sets optional properties at the time of creating an
// SPAHandler.
type SPAHandlerOption func(*SPAHandler)

// IndexRewriter rewrites (parts) of the index document contents to be
// delivered to a requesting client, after the base element has been updated
// (if enabled). It can be optionally activated using the WithIndexRewriter
// option when creating a new SPAHandler.
type IndexRewriter func(r *http.Request, index string) string

// WithIndexRewriter sets the specified IndexRewriter that gets called before
// delivering the index document contents to requesting clients, allowing for
// application-specific changes.
func WithIndexRewriter(rewriter IndexRewriter) SPAHandlerOption {
	return func(h *SPAHandler) {
		h.indexRewriter = rewriter
	}
}

// WithBaseRewriting enables rewriting the href of the index document's
// "<base href=... />" element to the base path the SPA is served from, as
// derived from the X-Forwarded-Prefix and X-Forwarded-Uri proxy headers.
// Without this option the index document is served byte for byte.
func WithBaseRewriting() SPAHandlerOption {
	return func(h *SPAHandler) {
		h.rewriteBase = true
	}
}

// Resolver returns the Resolver used by this handler.
func (h *SPAHandler) Resolver() *Resolver {
	return h.resolver
}

// ServeHTTP serves GET requests for existing files as is, for directories using
// the http.FileServer, and the index document for all other GET request paths.
// HEAD requests are handled the same, except for never falling back to the
// index document. All other methods are answered with 501.
func (h *SPAHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		r.URL.Path = sanitizedRequestPath(r.URL.Path)
		res, err := h.resolver.Resolve(r.URL.Path)
		if err != nil {
			NormalizedHttpError(w, err)
			return
		}
		switch {
		case res.Fallback:
			h.serveIndex(w, r)
		case res.Info.Mode().IsRegular():
			h.serveFile(w, r, res.Name)
		default:
			h.staticfileHandler.ServeHTTP(w, r)
		}
	case http.MethodHead:
		r.URL.Path = sanitizedRequestPath(r.URL.Path)
		if res, err := h.resolver.Resolve(r.URL.Path); err == nil &&
			res.Exists() && res.Info.Mode().IsRegular() {
			h.serveFile(w, r, res.Name)
			return
		}
		h.staticfileHandler.ServeHTTP(w, r)
	default:
		w.Header().Set("Allow", AllowedMethods)
		http.Error(w, fmt.Sprintf("%d %s", http.StatusNotImplemented,
			http.StatusText(http.StatusNotImplemented)), http.StatusNotImplemented)
	}
}

// sanitizedRequestPath returns the cleaned request path, keeping a trailing
// slash so that http.FileServer doesn't end up redirecting directory requests
// in circles.
func sanitizedRequestPath(urlPath string) string {
	cleaned := CleanPath(urlPath)
	if cleaned != "/" && strings.HasSuffix(urlPath, "/") {
		return cleaned + "/"
	}
	return cleaned
}

// serveFile serves the regular file with the specified unrooted name from the
// fs. Files are served directly instead of via the http.FileServer, as the
// latter would redirect ".../index.html" requests to their directories.
func (h *SPAHandler) serveFile(w http.ResponseWriter, r *http.Request, name string) {
	f, fileInfo, err := h.openFile(name)
	if err != nil {
		NormalizedHttpError(w, err)
		return
	}
	defer func() { _ = f.Close() }()
	if rs, ok := f.(io.ReadSeeker); ok {
		http.ServeContent(w, r, path.Base(name), fileInfo.ModTime(), rs)
		return
	}
	contents, err := io.ReadAll(f)
	if err != nil {
		NormalizedHttpError(w, err)
		return
	}
	http.ServeContent(w, r, path.Base(name), fileInfo.ModTime(), bytes.NewReader(contents))
}

// openFile opens the specified unrooted name from the fs, returning an error
// when it isn't a regular file.
func (h *SPAHandler) openFile(name string) (fs.File, fs.FileInfo, error) {
	f, err := h.fs.Open(name)
	if err != nil {
		return nil, nil, err
	}
	fileInfo, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	if !fileInfo.Mode().IsRegular() {
		_ = f.Close()
		return nil, nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return f, fileInfo, nil
}

// serveIndex serves the index document, optionally rewriting its HTML base
// element and passing it through the IndexRewriter, if any.
func (h *SPAHandler) serveIndex(w http.ResponseWriter, r *http.Request) {
	if !h.rewriteBase && h.indexRewriter == nil {
		h.serveFile(w, r, h.resolver.Index())
		return
	}
	var err error
	defer func() {
		if err != nil {
			NormalizedHttpError(w, err)
		}
	}()
	f, fileInfo, err := h.openFile(h.resolver.Index())
	if err != nil {
		return
	}
	defer func() { _ = f.Close() }()
	name := path.Base(h.resolver.Index())
	indexcontents, err := io.ReadAll(f)
	if err != nil {
		return
	}
	finalIndex := string(indexcontents)
	if h.rewriteBase {
		// Sanitize the base path so it cannot interfere with our regexp
		// replacement operations where we need to use "$1" and "$2" back
		// references.
		base := strings.ReplaceAll(h.basename(r), "$", "")
		finalIndex = baseRe.ReplaceAllString(finalIndex, "${1}"+base+"${2}")
	}
	if h.indexRewriter != nil {
		finalIndex = h.indexRewriter(r, finalIndex)
	}
	http.ServeContent(w, r, name, fileInfo.ModTime(), strings.NewReader(finalIndex))
}

// originalReqPath returns the (hopefully) original path when hitting the first
// proxy in a chain, based on what has been passed down to us. If no suitable
// forwarding information is present, the original -- and already sanitized --
// request URL path.
func (h *SPAHandler) originalReqPath(r *http.Request) string {
	// Was the request path rewritten? Then the original request path was the
	// forwarded prefix, followed by the remaining part we now see in the
	// request.
	if fwprefix := r.Header.Get(ForwardedPrefixHeader); fwprefix != "" {
		return path.Join(CleanPath(fwprefix), r.URL.Path)
	}
	// Some proxies pass only the original request path, others the full
	// original URI.
	if fwurl := r.Header.Get(ForwardedUriHeader); fwurl != "" {
		if strings.HasPrefix(fwurl, "/") {
			return path.Clean(fwurl)
		}
		if u, err := url.Parse(fwurl); err == nil {
			return CleanPath(u.Path)
		}
	}
	return r.URL.Path
}

// basename returns the URI request path base based on the given request, by
// consulting proxy headers when available. Rewriting forwarding proxies need to
// preserve the original client-side request URI path for this to work; if
// deriving the base name is impossible, the base is taken to be "/" from the
// clients' perspective.
func (h *SPAHandler) basename(r *http.Request) string {
	reqPath := r.URL.Path
	originalReqPath := h.originalReqPath(r)
	var base string
	if strings.HasSuffix(reqPath, "/") && !strings.HasSuffix(originalReqPath, "/") {
		// take care of the situation where the reverse proxy redirects from
		// /foo to /foo/ and then rewrites the path to /.
		originalReqPath += "/"
	}
	// If the request path we see is a proper suffix of the original request
	// path, take only the common base part (~prefix).
	if strings.HasSuffix(originalReqPath, reqPath) {
		base = originalReqPath[:len(originalReqPath)-len(reqPath)]
	}
	// Browsers apply dirname() to a base not ending in "/", clipping off the
	// final element.
	if strings.HasSuffix(base, "/") {
		return base
	}
	return base + "/"
}
