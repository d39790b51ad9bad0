package console

import (
	"fmt"
	"io"
	"os"
	"time"

	"mdrelay/internal/application/port"
)

type Sink struct {
	out io.Writer
}

func NewSink() port.Sink { return &Sink{out: os.Stdout} }

// NewSinkTo 输出到指定 writer（测试用）
func NewSinkTo(w io.Writer) port.Sink { return &Sink{out: w} }

func (s *Sink) WriteLive(line string) error {
	_, err := fmt.Fprint(s.out, line) // no newline
	return err
}

// 打印快照行后留一个空行，下次价格变化时再刷新 live 行
func (s *Sink) WriteSnapshot(ts time.Time, line string) error {
	_, err := fmt.Fprintf(s.out, "\n%s %s\n\n", ts.Format("2006-01-02 15:04:05"), line)
	return err
}

func (s *Sink) NewLine() error {
	_, err := fmt.Fprint(s.out, "\n")
	return err
}
