package providers

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"
)

// Framing 流式载荷的帧格式
type Framing int

const (
	// FramingSSE Server-Sent Events（"data: ..." 行）
	FramingSSE Framing = iota

	// FramingNDJSON 换行分隔的JSON对象
	FramingNDJSON
)

// ChunkExtractor 从单条帧载荷中提取文本增量。
// done 为 true 表示流正常结束；返回错误则终止解码。
type ChunkExtractor func(payload []byte) (text string, done bool, err error)

// maxStreamLineSize 单条帧的大小上限
const maxStreamLineSize = 1024 * 1024

// DecodeStream 共享的流式解码器。逐帧读取 r，用 extract 提取文本增量，
// 每个非空增量同步调用 onChunk，并返回累计的完整文本。
// 适配器只提供载荷形状对应的 ChunkExtractor，不各自解析SSE。
func DecodeStream(ctx context.Context, r io.Reader, framing Framing, extract ChunkExtractor, onChunk func(string)) (string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxStreamLineSize)

	var accumulated strings.Builder
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return accumulated.String(), ctx.Err()
		default:
		}

		payload := framePayload(scanner.Bytes(), framing)
		if payload == nil {
			continue
		}

		text, done, err := extract(payload)
		if err != nil {
			return accumulated.String(), err
		}
		if text != "" {
			accumulated.WriteString(text)
			if onChunk != nil {
				onChunk(text)
			}
		}
		if done {
			return accumulated.String(), nil
		}
	}

	if err := scanner.Err(); err != nil {
		return accumulated.String(), err
	}
	return accumulated.String(), nil
}

// framePayload 按帧格式取出本行的有效载荷，非数据行返回nil。
func framePayload(line []byte, framing Framing) []byte {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return nil
	}

	switch framing {
	case FramingSSE:
		// 事件名、注释等非data行直接跳过
		if !bytes.HasPrefix(trimmed, []byte("data:")) {
			return nil
		}
		return bytes.TrimSpace(trimmed[len("data:"):])
	case FramingNDJSON:
		return trimmed
	default:
		return nil
	}
}
