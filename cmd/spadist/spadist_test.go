// Copyright 2022 Harald Albrecht.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not
// use this file except in compliance with the License. You may obtain a copy
// of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations
// under the License.

package main

import (
	"bytes"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/gbytes"
	"github.com/onsi/gomega/gexec"
	. "github.com/thediveo/success"
)

// freePort returns a currently unused TCP port.
func freePort() int {
	GinkgoHelper()
	l := Successful(net.Listen("tcp", ":0"))
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

var _ = Describe("spadist command", func() {

	var workdir string

	BeforeEach(func() {
		workdir = GinkgoT().TempDir()
		dist := filepath.Join(workdir, "dist")
		Expect(os.Mkdir(dist, 0755)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(dist, "index.html"), []byte("APP"), 0644)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(dist, "app.js"), []byte("JS"), 0644)).To(Succeed())
	})

	// spadist starts the spadist command inside the working directory.
	spadist := func(args ...string) *gexec.Session {
		GinkgoHelper()
		cmd := exec.Command(spadistPath, args...)
		cmd.Dir = workdir
		session := Successful(gexec.Start(cmd, GinkgoWriter, GinkgoWriter))
		DeferCleanup(func() {
			session.Kill()
		})
		return session
	}

	get := func(url string) string {
		GinkgoHelper()
		resp := Successful(http.Get(url))
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		return string(Successful(io.ReadAll(resp.Body)))
	}

	It("serves dist until interrupted, then exits cleanly", func() {
		port := strconv.Itoa(freePort())
		session := spadist("--port", port)
		Eventually(session.Err).Within(5 * time.Second).Should(gbytes.Say("Serving from dist directory"))
		Eventually(session.Err).Within(5 * time.Second).Should(gbytes.Say("Serving at http://localhost:" + port))

		url := "http://localhost:" + port
		Expect(get(url + "/app.js")).To(Equal("JS"))
		Expect(get(url + "/nonexistent-route")).To(Equal("APP"))

		session.Interrupt()
		Eventually(session).Within(5 * time.Second).Should(gexec.Exit(0))
		Expect(session.Err).To(gbytes.Say("Stopping server..."))
	})

	It("serves the current directory when there is no dist directory", func() {
		Expect(os.RemoveAll(filepath.Join(workdir, "dist"))).To(Succeed())
		Expect(os.WriteFile(filepath.Join(workdir, "hello.txt"), []byte("HELLO"), 0644)).To(Succeed())
		port := strconv.Itoa(freePort())
		session := spadist("--port", port)
		Eventually(session.Err).Within(5 * time.Second).Should(
			gbytes.Say("'dist' directory not found. Serving current directory."))
		Eventually(session.Err).Within(5 * time.Second).Should(gbytes.Say("Serving at"))

		Expect(get("http://localhost:" + port + "/hello.txt")).To(Equal("HELLO"))

		session.Terminate()
		Eventually(session).Within(5 * time.Second).Should(gexec.Exit(0))
	})

	It("fails when the port is already taken", func() {
		l := Successful(net.Listen("tcp", ":0"))
		defer l.Close()
		session := spadist("--port", strconv.Itoa(l.Addr().(*net.TCPAddr).Port))
		Eventually(session).Within(5 * time.Second).Should(gexec.Exit(1))
		Expect(session.Err).To(gbytes.Say("cannot listen on port"))
	})

	It("fails on invalid configuration", func() {
		session := spadist("--port=-42")
		Eventually(session).Within(5 * time.Second).Should(gexec.Exit(1))
		Expect(session.Err).To(gbytes.Say("invalid port"))
	})

	It("reads a configuration file", func() {
		port := freePort()
		Expect(os.Rename(filepath.Join(workdir, "dist"), filepath.Join(workdir, "build"))).To(Succeed())
		Expect(os.WriteFile(filepath.Join(workdir, "spadist.toml"),
			[]byte("root = \"build\"\nport = "+strconv.Itoa(port)+"\n"), 0644)).To(Succeed())
		session := spadist("-c", "spadist.toml")
		Eventually(session.Err).Within(5 * time.Second).Should(gbytes.Say("Serving from build directory"))
		Eventually(session.Err).Within(5 * time.Second).Should(gbytes.Say("Serving at"))
		Expect(get("http://localhost:" + strconv.Itoa(port) + "/some/route")).To(Equal("APP"))
		session.Interrupt()
		Eventually(session).Within(5 * time.Second).Should(gexec.Exit(0))
	})

	Context("config subcommand", func() {

		It("shows the defaults", func() {
			cmd := newRootCmd()
			var out bytes.Buffer
			cmd.SetOut(&out)
			cmd.SetArgs([]string{"config"})
			Expect(cmd.Execute()).To(Succeed())
			Expect(out.String()).To(And(
				ContainSubstring("port: 8000\n"),
				ContainSubstring("root: dist\n"),
				ContainSubstring("index: index.html\n")))
		})

		It("lets flags override the configuration file", func() {
			name := filepath.Join(workdir, "spadist.yaml")
			Expect(os.WriteFile(name, []byte("port: 8080\nroot: build\n"), 0644)).To(Succeed())
			cmd := newRootCmd()
			var out bytes.Buffer
			cmd.SetOut(&out)
			cmd.SetArgs([]string{"config", "-c", name, "--port", "1234", "--rewrite-base"})
			Expect(cmd.Execute()).To(Succeed())
			Expect(out.String()).To(And(
				ContainSubstring("port: 1234\n"),
				ContainSubstring("root: build\n"),
				ContainSubstring("rewrite_base: true\n")))
		})

		It("rejects bogus log levels", func() {
			cmd := newRootCmd()
			cmd.SetOut(io.Discard)
			cmd.SetErr(io.Discard)
			cmd.SetArgs([]string{"config", "--log-level", "chatty"})
			Expect(cmd.Execute()).To(MatchError(ContainSubstring("invalid log level")))
		})

	})

})
