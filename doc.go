/*
Package spadist serves the build output ("dist") of "Single Page Applications"
(SPAs), supporting client-side DOM routing: every GET request for a path that
doesn't exist is answered with the SPA's index document instead of a 404.

The Resolver type decides which resource in an fs.FS to serve for a given
request path, keeping all paths contained inside the fs. The SPAHandler type
implements http.Handler on top of a Resolver, delegating existing files and
directories to http.FileServer and serving the index document for everything
else.

	http.Handle("/", spadist.NewSPAHandler(os.DirFS("dist"), "index.html"))

When served behind path rewriting reverse proxies, the WithBaseRewriting option
adjusts the index document's base element to the path the SPA is reachable
from, without the need to rebuild the SPA production code.

The spadist command in cmd/spadist wraps all this into a small server.
*/
package spadist
