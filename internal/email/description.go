package email

import (
	"encoding/json"

	"gopkg.in/yaml.v3"

	"github.com/shineum/sgmail/internal/smtpapi"
)

// StringList decodes from a single string or a list of strings.
type StringList = smtpapi.StringList

// Description is the loosely-typed seed of a Message. It decodes from JSON
// or YAML; the bracketed aliases "to[]", "toname[]" and "bcc[]" are
// accepted when the plain key is absent.
type Description struct {
	To       StringList
	ToName   StringList
	Bcc      StringList
	From     string
	FromName string
	Subject  string
	Text     string
	HTML     string
	ReplyTo  string
	Date     string
	Headers  string

	// SMTPAPI seeds the personalization header.
	SMTPAPI *smtpapi.Description
}

type descriptionWire struct {
	To          StringList           `json:"to" yaml:"to"`
	ToAlias     StringList           `json:"to[]" yaml:"to[]"`
	ToName      StringList           `json:"toname" yaml:"toname"`
	ToNameAlias StringList           `json:"toname[]" yaml:"toname[]"`
	Bcc         StringList           `json:"bcc" yaml:"bcc"`
	BccAlias    StringList           `json:"bcc[]" yaml:"bcc[]"`
	From        string               `json:"from" yaml:"from"`
	FromName    string               `json:"fromname" yaml:"fromname"`
	Subject     string               `json:"subject" yaml:"subject"`
	Text        string               `json:"text" yaml:"text"`
	HTML        string               `json:"html" yaml:"html"`
	ReplyTo     string               `json:"replyto" yaml:"replyto"`
	Date        string               `json:"date" yaml:"date"`
	Headers     string               `json:"headers" yaml:"headers"`
	SMTPAPI     *smtpapi.Description `json:"x-smtpapi" yaml:"x-smtpapi"`
}

func (w descriptionWire) description() Description {
	return Description{
		To:       firstNonEmpty(w.To, w.ToAlias),
		ToName:   firstNonEmpty(w.ToName, w.ToNameAlias),
		Bcc:      firstNonEmpty(w.Bcc, w.BccAlias),
		From:     w.From,
		FromName: w.FromName,
		Subject:  w.Subject,
		Text:     w.Text,
		HTML:     w.HTML,
		ReplyTo:  w.ReplyTo,
		Date:     w.Date,
		Headers:  w.Headers,
		SMTPAPI:  w.SMTPAPI,
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Description) UnmarshalJSON(data []byte) error {
	var w descriptionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*d = w.description()
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Description) UnmarshalYAML(value *yaml.Node) error {
	var w descriptionWire
	if err := value.Decode(&w); err != nil {
		return err
	}
	*d = w.description()
	return nil
}

func firstNonEmpty(lists ...StringList) StringList {
	for _, l := range lists {
		if len(l) > 0 {
			return l
		}
	}
	return nil
}
