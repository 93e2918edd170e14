package domain

import "errors"

var ErrItemNotFound = errors.New("item not found in basket")
