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
	"fmt"
	"io/fs"
	"net/http"
)

// StatusForError maps the specified filesystem-related error onto an HTTP
// status code: 404 for anything missing, 403 for permission problems, and 500
// for all else.
func StatusForError(err error) int {
	switch {
	case isNotExist(err):
		return http.StatusNotFound
	case errors.Is(err, fs.ErrPermission):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// NormalizedHttpError writes a normalized HTTP error message and HTTP status
// code based on the specified error, but not leaking any interesting internal
// server details from this specified error.
func NormalizedHttpError(w http.ResponseWriter, err error) {
	status := StatusForError(err)
	msg := http.StatusText(status)
	if status == http.StatusNotFound {
		msg = "page not found" // as http.NotFound does.
	}
	http.Error(w, fmt.Sprintf("%d %s", status, msg), status)
}
