package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

func getRoot(rw http.ResponseWriter, req *http.Request) {
	rw.WriteHeader(http.StatusOK)
	rw.Write([]byte(`{"service":"gatehouse"}`))
}

// writeErrResp writes err as a JSON error body with the given status.
func writeErrResp(rw http.ResponseWriter, err error, status int) {
	body, merr := json.Marshal(map[string]string{
		"error": err.Error(),
	})
	if merr != nil {
		logger.WithError(merr).Error("unable to marshal error response")

		rw.WriteHeader(http.StatusInternalServerError)
		return
	}

	rw.WriteHeader(status)
	rw.Write(body)
}

// sendWithBackoff keeps trying to put msg on ch, backing off a little
// more each attempt. Run requests are too valuable to drop just because
// the queue pump is momentarily behind.
func sendWithBackoff(logger *logrus.Entry, ch chan<- []byte, msg []byte) {
	backoff := 100 * time.Millisecond

	for attempt := 0; attempt < 10; attempt++ {
		select {
		case ch <- msg:
			logger.Debug("run message sent")
			return
		case <-time.After(backoff):
			backoff *= 2
			logger.WithField("backoff", backoff).
				Warn("queue send timed out, retrying")
		}
	}

	logger.Error("giving up sending run message")
}
