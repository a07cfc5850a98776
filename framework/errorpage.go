package framework

import (
	"bufio"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"runtime/debug"
	"strings"

	"go.uber.org/zap"
)

type StackFrame struct {
	Function string   `json:"function"`
	File     string   `json:"file"`
	Line     int      `json:"line"`
	Code     []string `json:"code,omitempty"`
	IsUser   bool     `json:"isUser"`
}

// ErrorReport is the development panic response.
type ErrorReport struct {
	ErrorType     string       `json:"errorType"`
	Message       string       `json:"message"`
	File          string       `json:"file,omitempty"`
	Line          int          `json:"line,omitempty"`
	StackTrace    []StackFrame `json:"stackTrace"`
	RequestMethod string       `json:"requestMethod"`
	RequestURL    string       `json:"requestUrl"`
	RequestID     string       `json:"requestId,omitempty"`
	Env           string       `json:"env"`
	GoVersion     string       `json:"goVersion"`
}

// DevErrorHandler writes a JSON report with the panic value and the stack,
// with source snippets for application frames.
func DevErrorHandler(w http.ResponseWriter, r *http.Request, err interface{}) {
	report := ErrorReport{
		ErrorType:     fmt.Sprintf("%T", err),
		Message:       fmt.Sprintf("%v", err),
		RequestMethod: r.Method,
		RequestURL:    r.URL.String(),
		RequestID:     w.Header().Get("X-Request-Id"),
		Env:           os.Getenv("APP_ENV"),
		GoVersion:     runtime.Version(),
		StackTrace:    parseStackTrace(debug.Stack()),
	}
	for _, f := range report.StackTrace {
		if f.IsUser {
			report.File, report.Line = f.File, f.Line
			break
		}
	}

	FromContext(r.Context()).Error("Panic recovered", zap.Any("panic", err), zap.String("file", report.File), zap.Int("line", report.Line))

	_ = WriteJSON(w, http.StatusInternalServerError, H{"error": report.Message, "debug": report})
}

// ProdErrorHandler hides panic details from the client.
func ProdErrorHandler(w http.ResponseWriter, r *http.Request, err interface{}) {
	FromContext(r.Context()).Error("Panic recovered", zap.Any("panic", err), zap.ByteString("stack", debug.Stack()))
	_ = WriteJSON(w, http.StatusInternalServerError, H{"error": "Something went wrong"})
}

func parseStackTrace(stack []byte) []StackFrame {
	lines := strings.Split(string(stack), "\n")
	var frames []StackFrame
	// debug.Stack() output starts with "goroutine ... [running]:" and then pairs of lines: function and file:line
	for i := 1; i < len(lines)-1; i += 2 {
		fn := strings.TrimSpace(lines[i])
		loc := strings.TrimSpace(lines[i+1])
		if fn == "" || loc == "" {
			continue
		}

		// "/path/to/file.go:123 +0xabc"
		colon := strings.LastIndex(loc, ":")
		if colon < 0 {
			continue
		}
		file := loc[:colon]
		var lineNum int
		fmt.Sscanf(strings.Fields(loc[colon+1:]+" ")[0], "%d", &lineNum)

		frame := StackFrame{
			Function: fn,
			File:     file,
			Line:     lineNum,
			IsUser: !strings.Contains(file, "/runtime/") &&
				!strings.Contains(file, "/framework/") &&
				!strings.Contains(file, "/pkg/mod/"),
		}
		if frame.IsUser {
			frame.Code = getSourceSnippet(file, lineNum)
		}
		frames = append(frames, frame)
	}
	return frames
}

func getSourceSnippet(file string, line int) []string {
	f, err := os.Open(file)
	if err != nil {
		return nil
	}
	defer f.Close()

	var snippet []string
	scanner := bufio.NewScanner(f)
	currentLine := 0
	start := line - 5
	end := line + 5

	for scanner.Scan() {
		currentLine++
		if currentLine >= start && currentLine <= end {
			prefix := "  "
			if currentLine == line {
				prefix = "> "
			}
			snippet = append(snippet, fmt.Sprintf("%d: %s%s", currentLine, prefix, scanner.Text()))
		}
		if currentLine > end {
			break
		}
	}
	return snippet
}
