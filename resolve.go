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
	"errors"
	"io/fs"
	"path"
	"syscall"
)

// Resolution describes which resource inside a Resolver's fs is to be served
// for a particular request path.
type Resolution struct {
	Name     string      // unrooted, slash-separated name inside the fs; "." for the fs root.
	Fallback bool        // true if the index resource was substituted.
	Info     fs.FileInfo // stat information of an existing resource; nil on fallback.
}

// Exists returns true if the request path referred to an existing file or
// directory, and false if the index resource has been substituted.
func (r Resolution) Exists() bool {
	return !r.Fallback
}

// Resolver maps (already URL-decoded) request paths onto resources inside an
// fs.FS, falling back to an index resource for everything that does not
// exist.
type Resolver struct {
	fs    fs.FS
	index string
}

// NewResolver returns a new Resolver for the specified fs and index resource.
// The index is sanitized into an unrooted, slash-separated path.
func NewResolver(fsys fs.FS, index string) *Resolver {
	return &Resolver{
		fs:    fsys,
		index: CleanPath(index)[1:],
	}
}

// Index returns the sanitized, unrooted name of the index resource.
func (r *Resolver) Index() string {
	return r.index
}

// CleanPath returns the rooted and cleaned form of the specified URL path.
// Any ".." elements that would otherwise climb above the root are dropped, so
// "/../secret" becomes "/secret".
func CleanPath(urlPath string) string {
	// Slapping "/" in front ensures that path.Clean never has to deal with a
	// relative path and thus clamps any ".." at the root.
	return path.Clean("/" + urlPath)
}

// Resolve returns the resource to serve for the specified request path. Paths
// to existing files and directories resolve to themselves, with the exception
// of "/" which always resolves to the index resource. Paths not existing
// resolve to the index resource, with Resolution.Fallback set. Errors other
// than the resource not existing are returned, such as when lacking
// permissions.
func (r *Resolver) Resolve(urlPath string) (Resolution, error) {
	name := CleanPath(urlPath)[1:] // ...fs.FS uses unrooted paths.
	if name == "" {
		return r.fallback(), nil
	}
	// fs.Stat falls back to opening and stat'ing when the fs.FS doesn't
	// implement fs.StatFS.
	info, err := fs.Stat(r.fs, name)
	if err != nil {
		if isNotExist(err) {
			return r.fallback(), nil
		}
		return Resolution{}, err
	}
	return Resolution{Name: name, Info: info}, nil
}

func (r *Resolver) fallback() Resolution {
	return Resolution{Name: r.index, Fallback: true}
}

// isNotExist returns true for all errors that indicate that there is nothing
// to be found at a particular path: the path doesn't exist, a parent element
// is a file instead of a directory, or the path is unacceptable to the fs or
// the OS.
func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, syscall.ENOTDIR) ||
		errors.Is(err, fs.ErrInvalid) ||
		errors.Is(err, syscall.EINVAL)
}
