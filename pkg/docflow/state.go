package docflow

// Package docflow is the document-workflow example application: documents are
// NFT-style tokens moving through a review lifecycle, grouped into packages
// and bound to file hashes. The whole workflow state lives under one state
// address so every operation sees a consistent view.

import (
	"aurachain/core"
)

// DocStatus is a document token's position in the workflow.
type DocStatus uint8

const (
	StatusCreated DocStatus = iota
	StatusSubmitted
	StatusApproved
	StatusRejected
	StatusPublished
)

// NFTToken is one document.
type NFTToken struct {
	SuperOwner string    `cbor:"super_owner"`
	Owner      string    `cbor:"owner"`
	PkgNo      string    `cbor:"pkg_no"`
	Status     DocStatus `cbor:"status"`
}

// DocState is the application's full workflow state.
type DocState struct {
	// token hash -> token
	Tokens map[core.Hash]NFTToken `cbor:"tokens"`
	// package number -> token hash list
	PkgNo map[string][]core.Hash `cbor:"pkg_no"`
	// token hash -> file hash
	FileHash map[core.Hash]core.Hash `cbor:"file_hash"`
	// address -> package numbers awaiting review
	PendingView map[string][]string `cbor:"pending_view"`
	// address -> token hashes awaiting confirmation
	ConfirmationList map[string][]core.Hash `cbor:"confirmation_list"`
}

// NewDocState returns an empty workflow state.
func NewDocState() *DocState {
	return &DocState{
		Tokens:           make(map[core.Hash]NFTToken),
		PkgNo:            make(map[string][]core.Hash),
		FileHash:         make(map[core.Hash]core.Hash),
		PendingView:      make(map[string][]string),
		ConfirmationList: make(map[string][]core.Hash),
	}
}

// SetHash binds a file hash to a token once.
func (s *DocState) SetHash(tokenHash, fileHash core.Hash) bool {
	if _, exists := s.FileHash[tokenHash]; exists {
		return false
	}
	s.FileHash[tokenHash] = fileHash
	return true
}

// CheckHash reports whether the token is bound to exactly fileHash.
func (s *DocState) CheckHash(tokenHash, fileHash core.Hash) bool {
	bound, ok := s.FileHash[tokenHash]
	return ok && bound == fileHash
}

// AddNFTToken inserts a new token; an existing hash is untouched.
func (s *DocState) AddNFTToken(tokenHash core.Hash, token NFTToken) bool {
	if _, exists := s.Tokens[tokenHash]; exists {
		return false
	}
	s.Tokens[tokenHash] = token
	return true
}

// ReplaceNFTToken overwrites a token unconditionally.
func (s *DocState) ReplaceNFTToken(tokenHash core.Hash, token NFTToken) {
	s.Tokens[tokenHash] = token
}

// GetNFTToken returns the token with the given hash.
func (s *DocState) GetNFTToken(tokenHash core.Hash) (NFTToken, bool) {
	token, ok := s.Tokens[tokenHash]
	return token, ok
}

// SetPkgList binds a document list to a fresh package number.
func (s *DocState) SetPkgList(pkgNo string, docs []core.Hash) bool {
	if _, exists := s.PkgNo[pkgNo]; exists {
		return false
	}
	s.PkgNo[pkgNo] = append([]core.Hash(nil), docs...)
	return true
}

// GetPkgList returns the documents grouped under pkgNo.
func (s *DocState) GetPkgList(pkgNo string) ([]core.Hash, bool) {
	docs, ok := s.PkgNo[pkgNo]
	return docs, ok
}

// AddToConfirmationList queues documents on an address's confirmation list.
func (s *DocState) AddToConfirmationList(address string, docs []core.Hash) {
	s.ConfirmationList[address] = append(s.ConfirmationList[address], docs...)
}

// UpdateConfirmationList replaces an address's confirmation list.
func (s *DocState) UpdateConfirmationList(address string, docs []core.Hash) {
	s.ConfirmationList[address] = append([]core.Hash(nil), docs...)
}

// GetConfirmationWaitingList returns an address's confirmation list.
func (s *DocState) GetConfirmationWaitingList(address string) []core.Hash {
	return s.ConfirmationList[address]
}

// AddPkgForReview queues a package number on an address's review list.
func (s *DocState) AddPkgForReview(address, pkgNo string) {
	s.PendingView[address] = append(s.PendingView[address], pkgNo)
}

// ReviewListContains reports whether pkgNo is pending review by address.
func (s *DocState) ReviewListContains(address, pkgNo string) bool {
	for _, no := range s.PendingView[address] {
		if no == pkgNo {
			return true
		}
	}
	return false
}

// RemovePkgFromReviewList drops a package number from an address's review
// list.
func (s *DocState) RemovePkgFromReviewList(address, pkgNo string) bool {
	list, ok := s.PendingView[address]
	if !ok {
		return false
	}
	for i, no := range list {
		if no == pkgNo {
			s.PendingView[address] = append(list[:i], list[i+1:]...)
			return true
		}
	}
	return false
}
