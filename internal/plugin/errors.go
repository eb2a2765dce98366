// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ShenBot Contributors

package plugin

import (
	"github.com/samber/oops"

	"github.com/shenbot/shenbot/pkg/errutil"
)

// Error codes for plugin load, reload and shutdown failures.
const (
	CodePluginNotFound              = "PLUGIN_NOT_FOUND"
	CodeReadPluginFailed            = "READ_PLUGIN_FAILED"
	CodePluginCfgIsDir              = "PLUGIN_CFG_IS_DIR"
	CodeReadPluginCfgFailed         = "READ_PLUGIN_CFG_FAILED"
	CodePluginConfigParseError      = "PLUGIN_CONFIG_PARSE_ERROR"
	CodeWritePluginDefaultCfgFailed = "WRITE_PLUGIN_DEFAULT_CFG_FAILED"
	CodeNoManifest                  = "NO_MANIFEST"
	CodeManifestTypeMismatch        = "MANIFEST_TYPE_MISMATCH"
	CodeOnloadFailed                = "ONLOAD_FAILED"
	CodeInterpreterError            = "INTERPRETER_ERROR"
	CodePluginNotStoppedCleanly     = "PLUGIN_NOT_STOPPED_CLEANLY"
	CodeUnknownPlugin               = "UNKNOWN_PLUGIN"
	CodeStatusFileFailed            = "STATUS_FILE_FAILED"
	CodeDuplicatePluginID           = "DUPLICATE_PLUGIN_ID"
)

// ErrPluginNotFound creates an error for a missing or non-regular plugin file.
func ErrPluginNotFound(path string, cause error) error {
	b := oops.Code(CodePluginNotFound).With("path", path)
	if cause != nil {
		return b.Wrapf(cause, "plugin file not found: %s", path)
	}
	return b.Errorf("plugin path is not a file: %s", path)
}

// ErrReadPluginFailed creates an error for an unreadable plugin source.
func ErrReadPluginFailed(path string, cause error) error {
	return oops.Code(CodeReadPluginFailed).
		With("path", path).
		Wrapf(cause, "read plugin source")
}

// ErrPluginCfgIsDir creates an error when a plugin's config path is a directory.
func ErrPluginCfgIsDir(pluginID, cfgPath string) error {
	return oops.Code(CodePluginCfgIsDir).
		With("plugin", pluginID).
		With("path", cfgPath).
		Errorf("plugin config path is a directory: %s", cfgPath)
}

// ErrReadPluginCfgFailed creates an error for an unreadable plugin config file.
func ErrReadPluginCfgFailed(pluginID, cfgPath string, cause error) error {
	return oops.Code(CodeReadPluginCfgFailed).
		With("plugin", pluginID).
		With("path", cfgPath).
		Wrapf(cause, "read plugin config")
}

// ErrPluginConfigParse creates an error for a config file that is not valid TOML.
func ErrPluginConfigParse(pluginID, cfgPath string, cause error) error {
	return oops.Code(CodePluginConfigParseError).
		With("plugin", pluginID).
		With("path", cfgPath).
		Wrapf(cause, "parse plugin config")
}

// ErrWriteDefaultCfgFailed creates an error when the first-run config cannot be written.
func ErrWriteDefaultCfgFailed(pluginID, cfgPath string, cause error) error {
	return oops.Code(CodeWritePluginDefaultCfgFailed).
		With("plugin", pluginID).
		With("path", cfgPath).
		Wrapf(cause, "write default plugin config")
}

// ErrNoManifest creates an error for a module that does not declare a manifest.
func ErrNoManifest(path string) error {
	return oops.Code(CodeNoManifest).
		With("path", path).
		With("attribute", ManifestAttr).
		Errorf("plugin does not define %s", ManifestAttr)
}

// ErrManifestTypeMismatch creates an error for a manifest of the wrong shape.
func ErrManifestTypeMismatch(path string, cause error) error {
	b := oops.Code(CodeManifestTypeMismatch).
		With("path", path).
		With("attribute", ManifestAttr)
	if cause != nil {
		return b.Wrapf(cause, "invalid %s", ManifestAttr)
	}
	return b.Errorf("%s is not a table", ManifestAttr)
}

// ErrOnloadFailed creates an error for an on_load hook that raised.
func ErrOnloadFailed(pluginID, path string, cause error) error {
	return withTraceback(oops.Code(CodeOnloadFailed).
		With("plugin", pluginID).
		With("path", path), cause).
		Wrapf(cause, "%s raised", OnLoadFunc)
}

// ErrInterpreter wraps any other fault raised by the embedded interpreter.
func ErrInterpreter(path string, cause error) error {
	return withTraceback(oops.Code(CodeInterpreterError).
		With("path", path), cause).
		Wrapf(cause, "interpreter error")
}

// ErrPluginNotStoppedCleanly reports that shutdown was interrupted while
// callback tasks were still running.
func ErrPluginNotStoppedCleanly(pending int) error {
	return oops.Code(CodePluginNotStoppedCleanly).
		With("pending_tasks", pending).
		Errorf("plugins not stopped cleanly: %d task(s) still running", pending)
}

// ErrUnknownPlugin creates an error for an id or path the registry does not hold.
func ErrUnknownPlugin(key string) error {
	return oops.Code(CodeUnknownPlugin).
		With("plugin", key).
		Errorf("unknown plugin: %s", key)
}

// ErrStatusFile creates an error for plugins.toml I/O or parse failures.
func ErrStatusFile(path string, cause error) error {
	return oops.Code(CodeStatusFileFailed).
		With("path", path).
		Wrapf(cause, "plugin status file")
}

// ErrDuplicatePluginID creates an error when two files declare the same id.
func ErrDuplicatePluginID(id, path, existing string) error {
	return oops.Code(CodeDuplicatePluginID).
		With("plugin", id).
		With("path", path).
		With("existing_path", existing).
		Errorf("plugin id %q already loaded from %s", id, existing)
}

func withTraceback(b oops.OopsErrorBuilder, cause error) oops.OopsErrorBuilder {
	if tb := Traceback(cause); tb != "" {
		return b.With(errutil.TracebackKey, tb)
	}
	return b
}

// ReplyMessage renders err for an admin chat reply.
func ReplyMessage(err error) string {
	if err == nil {
		return "ok"
	}
	if code := errutil.Code(err); code != "" {
		return code + ": " + err.Error()
	}
	return err.Error()
}
