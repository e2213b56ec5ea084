package data

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/go-sql-driver/mysql"
	"github.com/journeylab/db-reset-go/domain"
)

// MySQL errno values the gateway cares about.
const (
	errnoDBCreateExists       = 1007 // ER_DB_CREATE_EXISTS
	errnoDBAccessDenied       = 1044 // ER_DBACCESS_DENIED_ERROR
	errnoAccessDenied         = 1045 // ER_ACCESS_DENIED_ERROR
	errnoTableAccessDenied    = 1142 // ER_TABLEACCESS_DENIED_ERROR
	errnoSpecificAccessDenied = 1227 // ER_SPECIFIC_ACCESS_DENIED_ERROR
)

// classifyCatalogErr maps driver-level failures onto the domain error
// categories so callers can match with errors.Is. Server errors that fit no
// category pass through unchanged; nothing is swallowed or retried here.
func classifyCatalogErr(err error) error {
	if err == nil {
		return nil
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case errnoDBCreateExists:
			return fmt.Errorf("%w: %v", domain.ErrConcurrentModification, myErr)
		case errnoDBAccessDenied, errnoAccessDenied, errnoTableAccessDenied, errnoSpecificAccessDenied:
			return fmt.Errorf("%w: %v", domain.ErrPermission, myErr)
		}
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, mysql.ErrInvalidConn) {
		return fmt.Errorf("%w: %v", domain.ErrConnectivity, err)
	}

	return err
}
