package storage

import "errors"

const (
	UniqueViolation = "23505"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrOfferNotFound     = errors.New("offer not found")
	ErrOfferExists       = errors.New("offer with this url already exists")
	ErrReferenceNotFound = errors.New("no reference price for product")
	ErrStatusNotFound    = errors.New("no run status mirrored")
)
