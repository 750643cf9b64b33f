package realtime

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/chatmux/chatmux/config"
	"github.com/guonaihong/gout"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Emitter speaks the pusher-protocol HTTP trigger API (soketi compatible).
type Emitter struct {
	cfg config.RealtimeConfig
}

func NewEmitter(cfg config.RealtimeConfig) *Emitter {
	return &Emitter{cfg: cfg}
}

type triggerBody struct {
	Name     string   `json:"name"`
	Channels []string `json:"channels"`
	Data     string   `json:"data"`
}

// Trigger posts one event to one channel. The protocol signs the request
// with an md5 body checksum and an hmac-sha256 of the canonical query.
func (e *Emitter) Trigger(channel, event string, payload interface{}) error {
	data, err := json.MarshalToString(payload)
	if err != nil {
		return errors.Wrap(err, "marshal payload")
	}
	body, err := json.Marshal(triggerBody{
		Name:     event,
		Channels: []string{channel},
		Data:     data,
	})
	if err != nil {
		return errors.Wrap(err, "marshal body")
	}

	path := fmt.Sprintf("/apps/%s/events", e.cfg.AppId)
	bodyMd5 := md5.Sum(body)
	params := []string{
		"auth_key=" + e.cfg.Key,
		fmt.Sprintf("auth_timestamp=%d", time.Now().Unix()),
		"auth_version=1.0",
		"body_md5=" + hex.EncodeToString(bodyMd5[:]),
	}
	query := strings.Join(params, "&")

	mac := hmac.New(sha256.New, []byte(e.cfg.Secret))
	mac.Write([]byte("POST\n" + path + "\n" + query))
	signature := hex.EncodeToString(mac.Sum(nil))

	url := strings.TrimRight(e.cfg.Endpoint, "/") + path + "?" + query + "&auth_signature=" + signature

	var code int
	err = gout.POST(url).
		SetHeader(gout.H{"Content-Type": "application/json"}).
		SetBody(body).
		Code(&code).
		Do()
	if err != nil {
		return errors.Wrap(err, "trigger request")
	}
	if code < 200 || code > 299 {
		return errors.Errorf("trigger rejected: status %d", code)
	}
	return nil
}
