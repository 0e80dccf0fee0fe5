package middleware

import (
	"net/http"

	"wecare-backend/internal/models"

	"github.com/gin-gonic/gin"
)

// Operation - намерение, проверяемое политикой доступа
type Operation string

const (
	OpCommunityView  Operation = "community.view"
	OpPatientManage  Operation = "patient.manage"
	OpRideRequest    Operation = "ride.request"
	OpRideCancel     Operation = "ride.cancel"
	OpRideRate       Operation = "ride.rate"
	OpOfficeView     Operation = "office.view"
	OpRideAssign     Operation = "ride.assign"
	OpDriverView     Operation = "driver.view"
	OpRideAdvance    Operation = "ride.advance"
	OpRouteOptimize  Operation = "route.optimize"
	OpDriverLocation Operation = "driver.location"
)

// policy - единая таблица: операция → роли, которым она разрешена.
// Замена разрозненным спискам ролей на отдельных маршрутах.
var policy = map[Operation][]string{
	OpCommunityView:  {models.RoleCommunity},
	OpPatientManage:  {models.RoleCommunity},
	OpRideRequest:    {models.RoleCommunity},
	OpRideCancel:     {models.RoleCommunity},
	OpRideRate:       {models.RoleCommunity},
	OpOfficeView:     {models.RoleOffice, models.RoleOfficer, models.RoleAdmin, models.RoleDeveloper},
	OpRideAssign:     {models.RoleOffice, models.RoleOfficer, models.RoleAdmin, models.RoleDeveloper},
	OpDriverView:     {models.RoleDriver},
	OpRideAdvance:    {models.RoleDriver},
	OpRouteOptimize:  {models.RoleDriver},
	OpDriverLocation: {models.RoleDriver},
}

// Allowed проверяет, разрешена ли операция для роли
func Allowed(role string, op Operation) bool {
	for _, r := range policy[op] {
		if r == role {
			return true
		}
	}
	return false
}

// Require пропускает запрос дальше только если роль пользователя
// допущена к операции
func Require(op Operation) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString("user_role")
		if !Allowed(role, op) {
			c.JSON(http.StatusForbidden, gin.H{"message": "Недостаточно прав для выполнения операции"})
			c.Abort()
			return
		}
		c.Next()
	}
}
