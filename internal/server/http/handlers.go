package httpserver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gofrs/uuid/v5"

	"github.com/and161185/thermolink/internal/api"
	"github.com/and161185/thermolink/internal/convert"
	"github.com/and161185/thermolink/internal/errs"
	"github.com/and161185/thermolink/internal/model"
	"github.com/and161185/thermolink/internal/schema"
)

func pathID(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.FromString(c.Param(name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s is not a UUID", errs.ErrValidation, name)
	}
	return id, nil
}

func readJSON(c *gin.Context, dst any) error {
	raw, err := c.GetRawData()
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	return nil
}

func mustUser(c *gin.Context) *model.User {
	u, _ := UserFromCtx(c.Request.Context())
	return u
}

func mustDevice(c *gin.Context) *model.Device {
	d, _ := DeviceFromCtx(c.Request.Context())
	return d
}

// --- auth ---

func (s *Server) userLogin(c *gin.Context) {
	tok, err := s.auth.UserLogin(c.Request.Context(), c.PostForm("username"), c.PostForm("password"), c.ClientIP())
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToAPITokens(tok))
}

func (s *Server) deviceChallenge(c *gin.Context) {
	id, err := pathID(c, "device_id")
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	ch, err := s.auth.Challenge(c.Request.Context(), id)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToAPIChallenge(ch))
}

func (s *Server) deviceLogin(c *gin.Context) {
	var req api.DeviceLoginRequest
	if err := readJSON(c, &req); err != nil {
		s.abortWithError(c, err)
		return
	}
	tok, err := s.auth.DeviceLogin(c.Request.Context(), req.DeviceID, req.Signature, c.ClientIP())
	if err != nil {
		// Every login failure is a 401; the reason tells which check failed.
		if errors.Is(err, errs.ErrDeviceNotFound) {
			s.abortWithStatus(c, err, http.StatusUnauthorized)
			return
		}
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToAPITokens(tok))
}

// --- device ---

func (s *Server) deviceSchedule(c *gin.Context) {
	sch, err := s.devices.DeviceSchedule(c.Request.Context(), mustDevice(c))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, sch)
}

func (s *Server) deviceReport(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		s.abortWithError(c, fmt.Errorf("%w: %v", errs.ErrValidation, err))
		return
	}
	if err := s.validator.Validate(raw, schema.ReportID); err != nil {
		s.abortWithError(c, err)
		return
	}
	var in api.Report
	if err := json.Unmarshal(raw, &in); err != nil {
		s.abortWithError(c, fmt.Errorf("%w: %v", errs.ErrValidation, err))
		return
	}
	r, err := s.reports.Ingest(c.Request.Context(), mustDevice(c), convert.FromAPIReport(in, s.now()))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, convert.ToAPIReport(*r))
}

// --- user ---

func (s *Server) listDevices(c *gin.Context) {
	ds, err := s.devices.ListOwned(c.Request.Context(), mustUser(c).ID)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToAPIDevices(ds, convert.ToAPIDevice))
}

func (s *Server) getDevice(c *gin.Context) {
	id, err := pathID(c, "device_id")
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	d, err := s.devices.Get(c.Request.Context(), mustUser(c).ID, id)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToAPIDevice(*d))
}

func (s *Server) listReports(c *gin.Context) {
	id, err := pathID(c, "device_id")
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	rs, err := s.reports.ListReports(c.Request.Context(), mustUser(c), id)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToAPIReports(rs))
}

func (s *Server) getSchedule(c *gin.Context) {
	id, err := pathID(c, "device_id")
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	sch, err := s.devices.GetSchedule(c.Request.Context(), mustUser(c).ID, id)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, sch)
}

func (s *Server) setSchedule(c *gin.Context) {
	id, err := pathID(c, "device_id")
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	raw, err := c.GetRawData()
	if err != nil {
		s.abortWithError(c, fmt.Errorf("%w: %v", errs.ErrValidation, err))
		return
	}
	var sch *model.Schedule
	if string(raw) != "null" {
		if sch, err = s.validator.DecodeSchedule(raw); err != nil {
			s.abortWithError(c, err)
			return
		}
	}
	if err := s.devices.SetSchedule(c.Request.Context(), mustUser(c).ID, id, sch); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, sch)
}

// --- admin ---

func (s *Server) adminCreateUser(c *gin.Context) {
	var req api.CreateUserRequest
	if err := readJSON(c, &req); err != nil {
		s.abortWithError(c, err)
		return
	}
	u, err := s.admin.CreateUser(c.Request.Context(), req.Email, req.Password, req.IsAdmin)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, convert.ToAPIUser(*u))
}

func (s *Server) adminListUsers(c *gin.Context) {
	us, err := s.admin.ListUsers(c.Request.Context())
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToAPIUsers(us))
}

func (s *Server) adminGetUser(c *gin.Context) {
	id, err := pathID(c, "user_id")
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	u, err := s.admin.GetUser(c.Request.Context(), id)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToAPIUser(*u))
}

func (s *Server) adminDeleteUser(c *gin.Context) {
	id, err := pathID(c, "user_id")
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	if err := s.admin.DeleteUser(c.Request.Context(), id); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) adminCreateDevice(c *gin.Context) {
	var req api.CreateDeviceRequest
	if err := readJSON(c, &req); err != nil {
		s.abortWithError(c, err)
		return
	}
	id := uuid.Nil
	if req.DeviceID != nil {
		id = *req.DeviceID
	}
	d, err := s.admin.CreateDevice(c.Request.Context(), id, req.PublicKey, req.UserID)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, convert.ToAPIAdminDevice(*d))
}

func (s *Server) adminListDevices(c *gin.Context) {
	ds, err := s.admin.ListDevices(c.Request.Context())
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToAPIDevices(ds, convert.ToAPIAdminDevice))
}

func (s *Server) adminGetDevice(c *gin.Context) {
	id, err := pathID(c, "device_id")
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	d, err := s.admin.GetDevice(c.Request.Context(), id)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToAPIAdminDevice(*d))
}

func (s *Server) adminDeleteDevice(c *gin.Context) {
	id, err := pathID(c, "device_id")
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	if err := s.admin.DeleteDevice(c.Request.Context(), id); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) adminSetOwner(c *gin.Context) {
	id, err := pathID(c, "device_id")
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	var req api.SetOwnerRequest
	if err := readJSON(c, &req); err != nil {
		s.abortWithError(c, err)
		return
	}
	d, err := s.admin.AssignOwner(c.Request.Context(), id, req.UserID)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToAPIAdminDevice(*d))
}
