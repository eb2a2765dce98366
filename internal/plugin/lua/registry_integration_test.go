// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ShenBot Contributors

//go:build integration

package lua_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	plugins "github.com/shenbot/shenbot/internal/plugin"
	"github.com/shenbot/shenbot/internal/plugin/hostfunc"
	pluginlua "github.com/shenbot/shenbot/internal/plugin/lua"
	"github.com/shenbot/shenbot/internal/version"
	"github.com/shenbot/shenbot/pkg/errutil"
)

const echoTemplate = `
PLUGIN_MANIFEST = {
  id = "echo",
  name = "Echo",
  version = "%s",
  authors = {"shenbot"},
  config = {
    main = { prefix = "echo: ", enabled_rooms = {} },
  },
}

function on_ica_message(msg, client)
  local prefix = PLUGIN_MANIFEST.config.main.prefix
  client:reply(msg.room_id, msg.msg_id, prefix .. msg.content)
end
`

type recordingBackend struct {
	mu      sync.Mutex
	replies []string
}

func (b *recordingBackend) Name() string { return "ica" }

func (b *recordingBackend) SendMessage(context.Context, string, string) error { return nil }

func (b *recordingBackend) DeleteMessage(context.Context, string, string) error { return nil }

func (b *recordingBackend) Reply(_ context.Context, room, msgID, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replies = append(b.replies, room+"/"+msgID+"/"+text)
	return nil
}

func (b *recordingBackend) Replies() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.replies...)
}

var _ = Describe("Lua plugin registry", func() {
	var (
		ctx       context.Context
		pluginDir string
		configDir string
		registry  *plugins.Registry
	)

	writePlugin := func(name, src string) string {
		path := filepath.Join(pluginDir, name)
		Expect(os.WriteFile(path, []byte(src), 0o600)).To(Succeed())
		return path
	}

	newRegistry := func() *plugins.Registry {
		r, err := plugins.NewRegistry(plugins.RegistryConfig{
			PluginDir:   pluginDir,
			ConfigDir:   configDir,
			Interpreter: pluginlua.NewInterpreterWithFunctions(hostfunc.New(version.Current())),
		})
		Expect(err).NotTo(HaveOccurred())
		return r
	}

	BeforeEach(func() {
		ctx = context.Background()
		root := GinkgoT().TempDir()
		pluginDir = filepath.Join(root, "plugins")
		configDir = filepath.Join(root, "config")
		Expect(os.MkdirAll(pluginDir, 0o750)).To(Succeed())
		registry = newRegistry()
	})

	AfterEach(func() {
		registry.Close()
	})

	Describe("first run", func() {
		It("writes the default config and records the plugin as enabled", func() {
			writePlugin("echo.lua", fmt.Sprintf(echoTemplate, "0.1.0"))

			Expect(registry.LoadAll(ctx)).To(Succeed())
			Expect(registry.Len()).To(Equal(1))

			cfg, err := os.ReadFile(filepath.Join(configDir, "echo.toml"))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(cfg)).To(ContainSubstring("# plugin Echo (echo) config"))
			Expect(string(cfg)).To(ContainSubstring("[main]"))
			Expect(string(cfg)).To(ContainSubstring("prefix = 'echo: '"))

			status, err := plugins.LoadStatusFile(registry.StatusPath())
			Expect(err).NotTo(HaveOccurred())
			enabled, ok := status.Get("echo")
			Expect(ok).To(BeTrue())
			Expect(enabled).To(BeTrue())
		})

		It("skips plugins without a manifest", func() {
			writePlugin("bare.lua", `x = 1`)

			Expect(registry.LoadAll(ctx)).To(Succeed())
			Expect(registry.Len()).To(BeZero())
		})
	})

	Describe("hot reload", func() {
		var path string

		BeforeEach(func() {
			path = writePlugin("echo.lua", fmt.Sprintf(echoTemplate, "0.1.0"))
			Expect(registry.LoadAll(ctx)).To(Succeed())
		})

		It("leaves unchanged sources alone", func() {
			res, err := registry.CheckAndReload(ctx, path)
			Expect(err).NotTo(HaveOccurred())
			Expect(res).To(Equal(plugins.Unchanged))
		})

		It("reloads when the content hash changes", func() {
			writePlugin("echo.lua", fmt.Sprintf(echoTemplate, "0.2.0"))

			res, err := registry.CheckAndReload(ctx, path)
			Expect(err).NotTo(HaveOccurred())
			Expect(res).To(Equal(plugins.Reloaded))

			snap, ok := registry.Get("echo")
			Expect(ok).To(BeTrue())
			Expect(snap.Version).To(Equal("0.2.0"))
		})

		It("keeps the previous module when the new source is broken", func() {
			writePlugin("echo.lua", "PLUGIN_MANIFEST = {")

			_, err := registry.CheckAndReload(ctx, path)
			Expect(err).To(HaveOccurred())
			Expect(errutil.Code(err)).To(Equal(plugins.CodeInterpreterError))

			snap, ok := registry.Get("echo")
			Expect(ok).To(BeTrue())
			Expect(snap.Version).To(Equal("0.1.0"))
			Expect(snap.State).To(Equal(plugins.StateReloadFailed))
			Expect(snap.Module.HasFunc("on_ica_message")).To(BeTrue())
		})

		It("reports on_load failures with a traceback", func() {
			writePlugin("echo.lua", fmt.Sprintf(echoTemplate, "0.3.0")+`
function on_load()
  error("refusing to start")
end
`)

			_, err := registry.CheckAndReload(ctx, path)
			Expect(err).To(HaveOccurred())
			Expect(errutil.Code(err)).To(Equal(plugins.CodeOnloadFailed))
			Expect(plugins.Traceback(err)).To(ContainSubstring("stack traceback:"))
		})
	})

	Describe("status persistence", func() {
		BeforeEach(func() {
			writePlugin("echo.lua", fmt.Sprintf(echoTemplate, "0.1.0"))
			Expect(registry.LoadAll(ctx)).To(Succeed())
		})

		It("round-trips a disabled flag through plugins.toml", func() {
			previous, ok := registry.SetStatus("echo", false)
			Expect(ok).To(BeTrue())
			Expect(previous).To(BeTrue())
			Expect(registry.SyncToFile()).To(Succeed())

			fresh := newRegistry()
			defer fresh.Close()
			Expect(fresh.LoadAll(ctx)).To(Succeed())

			enabled, ok := fresh.Status("echo")
			Expect(ok).To(BeTrue())
			Expect(enabled).To(BeFalse())
			Expect(fresh.Enabled()).To(BeEmpty())
		})

		It("keeps the flag across a reload", func() {
			registry.SetStatus("echo", false)
			Expect(registry.ReloadByID(ctx, "echo")).To(Succeed())

			enabled, _ := registry.Status("echo")
			Expect(enabled).To(BeFalse())
		})
	})

	Describe("unknown ids", func() {
		It("reports them without side effects", func() {
			Expect(registry.LoadAll(ctx)).To(Succeed())

			_, ok := registry.SetStatus("ghost", true)
			Expect(ok).To(BeFalse())

			err := registry.ReloadByID(ctx, "ghost")
			Expect(errutil.Code(err)).To(Equal(plugins.CodeUnknownPlugin))
			Expect(registry.Len()).To(BeZero())
		})
	})

	Describe("dispatch", func() {
		It("runs enabled plugins' callbacks with a client handle", func() {
			writePlugin("echo.lua", fmt.Sprintf(echoTemplate, "0.1.0"))
			Expect(registry.LoadAll(ctx)).To(Succeed())

			backend := &recordingBackend{}
			dispatcher := plugins.NewDispatcher(registry, plugins.NewTracker())
			handles := dispatcher.Dispatch(ctx, plugins.Event{
				Kind: plugins.EventIcaNewMessage,
				Payload: map[string]any{
					"room_id": "42",
					"msg_id":  "m1",
					"content": "hello",
				},
			}, plugins.Client{Backend: backend, Plugins: registry})
			Expect(handles).To(HaveLen(1))

			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			Expect(dispatcher.Shutdown(shutdownCtx)).To(Succeed())
			Expect(backend.Replies()).To(ConsistOf("42/m1/echo: hello"))
		})
	})
})
