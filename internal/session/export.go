package session

import (
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
)

// Export 将会话文件写入 w；compress 为 true 时以 zstd 流压缩输出。
func Export(w io.Writer, path string, compress bool) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if !compress {
		return io.Copy(w, f)
	}

	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return 0, fmt.Errorf("create zstd encoder: %w", err)
	}
	n, err := io.Copy(enc, f)
	if err != nil {
		enc.Close()
		return n, err
	}
	if err := enc.Close(); err != nil {
		return n, fmt.Errorf("flush zstd stream: %w", err)
	}
	return n, nil
}

// ExportName 返回导出文件名，压缩时追加 .zst 后缀。
func ExportName(name string, compress bool) string {
	if compress {
		return name + ".zst"
	}
	return name
}
