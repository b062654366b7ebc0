package api

import (
	"github.com/gin-gonic/gin"
)

const authRealm = "CryptoNewsHub"

// healthPath 探活接口不需要密码
const healthPath = "/health"

// BasicAuth 整站单账号访问密码，基于 gin 自带的 BasicAuthForRealm
func BasicAuth(user, pass string) gin.HandlerFunc {
	check := gin.BasicAuthForRealm(gin.Accounts{user: pass}, authRealm)
	return func(c *gin.Context) {
		if c.Request.URL.Path == healthPath {
			return
		}
		check(c)
	}
}
