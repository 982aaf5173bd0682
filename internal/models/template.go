package models

import "encoding/json"

// SignatureLinkStats carries link-count statistics inside a signature.
type SignatureLinkStats struct {
	TotalLinks int `json:"totalLinks"`
}

// TemplateSignature is the structural fingerprint of an HTML document.
// Two documents with equal signatures share a template. Every field is
// content-independent by construction.
//
// Field order matters: the signature hash is the sha256 of the canonical
// JSON form, and encoding/json emits struct fields in declaration order
// (nested map keys sort lexicographically), so this declaration order is
// part of the hash contract.
type TemplateSignature struct {
	BodyTopLevelTags  []string           `json:"bodyTopLevelTags"`
	LandmarkCounts    map[string]int     `json:"landmarkCounts"`
	FormElements      map[string]int     `json:"formElements"`
	LinkStats         SignatureLinkStats `json:"linkStats"`
	DOMSkeletonSample []string           `json:"domSkeletonSample"`
	ClassTokensSample []string           `json:"classTokensSample"`
}

// CanonicalJSON returns the byte-stable serialized form used for hashing.
func (s *TemplateSignature) CanonicalJSON() ([]byte, error) {
	return json.Marshal(s)
}

// Template is a cluster of pages sharing a structural signature within a
// run. Uniqueness key is (crawlRunId, signatureHash).
type Template struct {
	ID            string            `json:"id"`
	CrawlRunID    string            `json:"crawlRunId"`
	SignatureHash string            `json:"signatureHash"`
	Signature     TemplateSignature `json:"signature"`
	SamplePageID  string            `json:"samplePageId"`
	PageCount     int               `json:"pageCount"`
}
