package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskDSN(t *testing.T) {
	assert.Equal(t, "postgres://*****:*****@db:5432/slots?sslmode=disable",
		maskDSN("postgres://app:s3cr3t@db:5432/slots?sslmode=disable"))
	assert.Equal(t, "postgres://*****:*****@db:5432/slots",
		maskDSN("postgres://app:p@ss@db:5432/slots"))
	assert.Equal(t, "postgres://db:5432/slots", maskDSN("postgres://db:5432/slots"))
}
