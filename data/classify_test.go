package data

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/journeylab/db-reset-go/domain"
)

func mysqlErr(number uint16, message string) *mysql.MySQLError {
	return &mysql.MySQLError{Number: number, Message: message}
}

func TestClassifyPermissionErrors(t *testing.T) {
	for _, number := range []uint16{1044, 1045, 1142, 1227} {
		err := classifyCatalogErr(mysqlErr(number, "access denied"))
		assert.ErrorIs(t, err, domain.ErrPermission, "errno %d", number)
	}
}

func TestClassifyConcurrentCreate(t *testing.T) {
	err := classifyCatalogErr(mysqlErr(1007, "Can't create database 'journey'; database exists"))
	assert.ErrorIs(t, err, domain.ErrConcurrentModification)
}

func TestClassifyConnectivityErrors(t *testing.T) {
	cases := []error{
		&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")},
		driver.ErrBadConn,
		mysql.ErrInvalidConn,
		fmt.Errorf("exec: %w", driver.ErrBadConn),
	}
	for _, cause := range cases {
		err := classifyCatalogErr(cause)
		assert.ErrorIs(t, err, domain.ErrConnectivity, "cause %v", cause)
	}
}

func TestClassifyPassesThroughUnknownServerErrors(t *testing.T) {
	cause := mysqlErr(1064, "syntax error")
	err := classifyCatalogErr(cause)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrPermission)
	assert.NotErrorIs(t, err, domain.ErrConnectivity)
	assert.NotErrorIs(t, err, domain.ErrConcurrentModification)

	var myErr *mysql.MySQLError
	assert.ErrorAs(t, err, &myErr)
}

func TestClassifyNil(t *testing.T) {
	assert.NoError(t, classifyCatalogErr(nil))
}

func TestClassifyWrappedMySQLError(t *testing.T) {
	cause := fmt.Errorf("exec drop: %w", mysqlErr(1044, "access denied to 'journey'"))
	assert.ErrorIs(t, classifyCatalogErr(cause), domain.ErrPermission)
}
