package restyutil

import (
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
)

type InstrumentOutput interface {
	Write(id string, contents string)
}

type dumper struct {
	output    InstrumentOutput
	idcounter *uint64
}

// DumpMessages writes every request and its response to output, messages
// are numbered in the order their responses arrive.
func DumpMessages(client *resty.Client, output InstrumentOutput) {
	if output == nil {
		return
	}
	var idcounter uint64
	d := dumper{output: output, idcounter: &idcounter}
	client.OnAfterResponse(d.onAfterResponse)
}

func (d dumper) onAfterResponse(_ *resty.Client, res *resty.Response) error {
	messageId := strconv.FormatUint(atomic.AddUint64(d.idcounter, 1), 10)
	d.output.Write(messageId, formatHttpMessage(res))
	slog.DebugContext(
		res.Request.Context(), "dumped http message",
		"method", res.Request.Method,
		"url", res.Request.URL,
		"status", res.StatusCode(),
		"message_id", messageId,
	)
	return nil
}
