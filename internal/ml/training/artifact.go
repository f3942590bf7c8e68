package training

import (
	"encoding/json"
	"errors"
	"fmt"

	"trendr/internal/ml"
	"trendr/internal/ml/ensemble"
	"trendr/internal/ml/models/logreg"
	"trendr/internal/ml/models/xgboost"
)

// ArtifactFormat identifies the envelope layout stored in the registry.
const ArtifactFormat = "json/trendr-envelope-v1"

var ErrBadArtifact = errors.New("unreadable model artifact")

type envelope struct {
	Kind          string          `json:"kind"`
	SchemaVersion string          `json:"schema_version"`
	FeatureNames  []string        `json:"feature_names"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Members       []memberBlob    `json:"members,omitempty"`
}

type memberBlob struct {
	Kind    string          `json:"kind"`
	Weight  float64         `json:"weight"`
	Payload json.RawMessage `json:"payload"`
}

// Loaded is a classifier restored from an artifact together with what it was fit on.
type Loaded struct {
	Kind          string
	SchemaVersion string
	FeatureNames  []string
	Classifier    ml.Classifier
}

func encodeSingle(kind, schemaVersion string, m ml.Model) ([]byte, error) {
	payload, err := m.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", kind, err)
	}
	return json.Marshal(envelope{
		Kind:          kind,
		SchemaVersion: schemaVersion,
		FeatureNames:  m.FeatureNames(),
		Payload:       payload,
	})
}

func encodeEnsemble(schemaVersion string, names []string, members map[string]ml.Model, weights map[string]float64) ([]byte, error) {
	env := envelope{Kind: ml.ModelEnsemble, SchemaVersion: schemaVersion, FeatureNames: names}
	for _, kind := range []string{ml.ModelLogReg, ml.ModelGBC} {
		m, ok := members[kind]
		if !ok {
			continue
		}
		payload, err := m.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", kind, err)
		}
		env.Members = append(env.Members, memberBlob{Kind: kind, Weight: weights[kind], Payload: payload})
	}
	return json.Marshal(env)
}

// Decode restores the classifier stored in blob.
func Decode(blob []byte) (*Loaded, error) {
	var env envelope
	if err := json.Unmarshal(blob, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArtifact, err)
	}
	out := &Loaded{Kind: env.Kind, SchemaVersion: env.SchemaVersion, FeatureNames: env.FeatureNames}
	switch env.Kind {
	case ml.ModelLogReg, ml.ModelGBC:
		c, err := decodeModel(env.Kind, env.Payload)
		if err != nil {
			return nil, err
		}
		out.Classifier = c
	case ml.ModelEnsemble:
		members := make([]ensemble.Member, 0, len(env.Members))
		for _, mb := range env.Members {
			c, err := decodeModel(mb.Kind, mb.Payload)
			if err != nil {
				return nil, err
			}
			members = append(members, ensemble.Member{Name: mb.Kind, Weight: mb.Weight, Classifier: c})
		}
		e, err := ensemble.New(members...)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadArtifact, err)
		}
		out.Classifier = e
	default:
		return nil, fmt.Errorf("%w: kind %q", ErrBadArtifact, env.Kind)
	}
	return out, nil
}

func decodeModel(kind string, payload []byte) (ml.Model, error) {
	var (
		m   ml.Model
		err error
	)
	switch kind {
	case ml.ModelLogReg:
		m, err = logreg.UnmarshalBinary(payload)
	case ml.ModelGBC:
		m, err = xgboost.UnmarshalBinary(payload)
	default:
		return nil, fmt.Errorf("%w: member kind %q", ErrBadArtifact, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBadArtifact, kind, err)
	}
	return m, nil
}
