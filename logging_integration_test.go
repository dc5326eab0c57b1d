package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoggingFallbackToStdout(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root 可绕过目录权限，跳过")
	}
	dir := t.TempDir()
	blocked := filepath.Join(dir, "blocked")
	if err := os.Mkdir(blocked, 0o755); err != nil {
		t.Fatalf("创建目录失败: %v", err)
	}
	if err := os.Chmod(blocked, 0o000); err != nil {
		t.Fatalf("设置目录权限失败: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(blocked, 0o755) })

	logPath := filepath.Join(blocked, "sub", "gaslog.log")
	configPath := writeConfigFile(t, fmt.Sprintf(`
LogLevel = "info"
LogFilePath = "%s"
StoragePath = "%s"
ListenPort = 5080

[[Device]]
Name = "sniffer"
ID = "AA:BB:CC:DD:EE:01"
`, logPath, filepath.Join(dir, "storage")))

	useBufferWriters(t)
	code := run(context.Background(), cliOptions{configPath: configPath, checkOnly: true})
	if code != 0 {
		t.Fatalf("日志 fallback 不应导致失败，得到 %d", code)
	}
	t.Log(stdOut.(*bytes.Buffer).String())
}

func TestRunRejectsInvalidPort(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfigFile(t, fmt.Sprintf(`
LogLevel = "warn"
StoragePath = "%s"
ListenPort = 70000

[[Device]]
Name = "sniffer"
ID = "AA:BB:CC:DD:EE:01"
`, filepath.Join(dir, "storage")))

	useBufferWriters(t)
	code := run(context.Background(), cliOptions{configPath: configPath})
	if code == 0 {
		t.Fatalf("非法端口应导致启动失败")
	}
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(file, []byte(strings.TrimSpace(content)), 0o600); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}
	return file
}
