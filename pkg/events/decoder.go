package events

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// DecodeError reports that a single record could not be decoded. It is a
// per-record condition: the poll cycle skips the record and continues.
type DecodeError struct {
	Topic string
	Cause string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot decode record on %s: %s", e.Topic, e.Cause)
}

// wireEvent is the superset of fields across all four schemas. Pointers
// distinguish "absent" from zero values so required-field checks are exact.
type wireEvent struct {
	Meta struct {
		Domain string `json:"domain"`
		Dt     string `json:"dt"`
	} `json:"meta"`
	PageTitle     *string `json:"page_title"`
	PageNamespace *int    `json:"page_namespace"`
	RevID         *int64  `json:"rev_id"`
}

// Decode parses one record payload according to the schema of its canonical
// topic. The topic must already have any cluster prefix stripped, see
// cluster.Router.Canonical.
func Decode(canonicalTopic string, payload []byte) (ChangeEvent, error) {
	switch canonicalTopic {
	case TopicRevisionCreate, TopicPageDelete, TopicPageUndelete, TopicPropertyChange:
	default:
		return nil, &DecodeError{Topic: canonicalTopic, Cause: "unknown topic"}
	}

	var w wireEvent
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, &DecodeError{Topic: canonicalTopic, Cause: fmt.Sprintf("malformed payload: %s", err)}
	}

	meta, err := w.meta(canonicalTopic)
	if err != nil {
		return nil, err
	}
	if w.PageTitle == nil || *w.PageTitle == "" {
		return nil, &DecodeError{Topic: canonicalTopic, Cause: "missing page_title"}
	}
	title := *w.PageTitle

	switch canonicalTopic {
	case TopicRevisionCreate:
		rev, err := w.revision(canonicalTopic)
		if err != nil {
			return nil, err
		}
		return RevisionCreate{eventMeta: meta, entityID: title, revision: rev}, nil
	case TopicPageDelete:
		return PageDelete{eventMeta: meta, entityID: title}, nil
	case TopicPageUndelete:
		rev, err := w.revision(canonicalTopic)
		if err != nil {
			return nil, err
		}
		return PageUndelete{eventMeta: meta, entityID: title, revision: rev}, nil
	default:
		return PropertyChange{eventMeta: meta, entityID: title}, nil
	}
}

func (w *wireEvent) meta(topic string) (eventMeta, error) {
	if w.Meta.Domain == "" {
		return eventMeta{}, &DecodeError{Topic: topic, Cause: "missing meta.domain"}
	}
	if w.Meta.Dt == "" {
		return eventMeta{}, &DecodeError{Topic: topic, Cause: "missing meta.dt"}
	}
	// RFC3339Nano accepts both second and sub-second precision input.
	ts, err := time.Parse(time.RFC3339Nano, w.Meta.Dt)
	if err != nil {
		return eventMeta{}, &DecodeError{Topic: topic, Cause: fmt.Sprintf("bad meta.dt %q: %s", w.Meta.Dt, err)}
	}
	if w.PageNamespace == nil {
		return eventMeta{}, &DecodeError{Topic: topic, Cause: "missing page_namespace"}
	}
	return eventMeta{domain: w.Meta.Domain, namespace: *w.PageNamespace, timestamp: ts}, nil
}

func (w *wireEvent) revision(topic string) (int64, error) {
	if w.RevID == nil {
		return 0, &DecodeError{Topic: topic, Cause: "missing rev_id"}
	}
	if *w.RevID < 0 {
		return 0, &DecodeError{Topic: topic, Cause: fmt.Sprintf("negative rev_id %d", *w.RevID)}
	}
	return *w.RevID, nil
}
