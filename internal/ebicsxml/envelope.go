// Package ebicsxml implements the XML codec for the EBICS H004
// envelope family and its companion ISO 20022 payloads. Parsing is
// dispatched by root element name the way lnwire/message.go dispatches
// binary messages by a 2-byte type field: PeekRootElement inspects the
// document before choosing the concrete Go type to unmarshal into
// (spec.md §4.3).
package ebicsxml

import (
	"bytes"
	"compress/zlib"
	"encoding/xml"
	"fmt"
	"io"
)

// RootElement names the document types this codec recognizes.
type RootElement string

const (
	RootHEVRequest             RootElement = "ebicsHEVRequest"
	RootHEVResponse            RootElement = "HEVResponse"
	RootUnsecuredRequest       RootElement = "ebicsUnsecuredRequest"
	RootNoPubKeyDigestsRequest RootElement = "ebicsNoPubKeyDigestsRequest"
	RootRequest                RootElement = "ebicsRequest"
	RootResponse               RootElement = "ebicsResponse"
)

// Envelope is satisfied by every top-level EBICS document this codec
// parses or emits.
type Envelope interface {
	RootName() RootElement
}

// PeekRootElement reads just the root element's local name from doc,
// without unmarshaling the whole body, so callers can pick the right
// concrete type before fully decoding.
func PeekRootElement(doc []byte) (RootElement, error) {
	dec := xml.NewDecoder(bytes.NewReader(doc))
	for {
		tok, err := dec.Token()
		if err != nil {
			if err == io.EOF {
				return "", ErrMalformedDocument
			}
			return "", fmt.Errorf("%w: %v", ErrMalformedDocument, err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			return RootElement(start.Name.Local), nil
		}
	}
}

// Unmarshal dispatches doc to the concrete Envelope type registered for
// its root element and decodes into it.
func Unmarshal(doc []byte) (Envelope, error) {
	root, err := PeekRootElement(doc)
	if err != nil {
		return nil, err
	}

	var env Envelope
	switch root {
	case RootHEVRequest:
		env = &HEVRequest{}
	case RootHEVResponse:
		env = &HEVResponse{}
	case RootUnsecuredRequest:
		env = &UnsecuredRequest{}
	case RootNoPubKeyDigestsRequest:
		env = &NoPubKeyDigestsRequest{}
	case RootRequest:
		env = &Request{}
	case RootResponse:
		env = &Response{}
	default:
		return nil, &UnknownElement{Local: string(root)}
	}

	if err := xml.Unmarshal(doc, env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	return env, nil
}

// Marshal renders env as an XML document with the standard declaration
// EBICS servers expect.
func Marshal(env Envelope) ([]byte, error) {
	body, err := xml.MarshalIndent(env, "", "")
	if err != nil {
		return nil, fmt.Errorf("ebicsxml: marshal %s: %w", env.RootName(), err)
	}
	return append([]byte(xml.Header), body...), nil
}

// DeflateOrderData zlib-compresses order data XML, the form EBICS
// H004 always carries order data in before any further encryption or
// Base64 segmentation (spec.md §4.2).
func DeflateOrderData(plain []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(plain); err != nil {
		return nil, fmt.Errorf("ebicsxml: deflate order data: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("ebicsxml: deflate order data: %w", err)
	}
	return buf.Bytes(), nil
}

// InflateOrderData reverses DeflateOrderData.
func InflateOrderData(compressed []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("ebicsxml: inflate order data: %w", err)
	}
	defer r.Close()

	plain, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("ebicsxml: inflate order data: %w", err)
	}
	return plain, nil
}
