package apiserver

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type queueEntry struct {
	Address  string `json:"address"`
	Name     string `json:"name"`
	Arrival  int    `json:"arrival"`
	Detached bool   `json:"detached"`
}

func (srv *APIServer) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, srv.source.Status())
}

func (srv *APIServer) handleReplicas(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"replicas": srv.source.Replicas(),
	})
}

func (srv *APIServer) handleNames(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"names": srv.source.Names(),
	})
}

func (srv *APIServer) handleQueues(c *gin.Context) {
	queues := make(map[string][]queueEntry)
	for capacity, q := range srv.source.Queues() {
		entries := make([]queueEntry, len(q))
		for i, client := range q {
			entries[i] = queueEntry{
				Address:  client.Address,
				Name:     client.Name,
				Arrival:  client.Arrival,
				Detached: client.Detached(),
			}
		}
		queues[strconv.Itoa(capacity)] = entries
	}
	c.JSON(http.StatusOK, gin.H{
		"queues": queues,
	})
}

func (srv *APIServer) handleSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"sessions": srv.source.Sessions(),
	})
}

func (srv *APIServer) handleSessionGet(c *gin.Context) {
	param, ok := c.Params.Get("session")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing session param"})
		return
	}
	id, err := strconv.Atoi(param)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session id must be an integer"})
		return
	}
	session, ok := srv.source.Session(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session id does not exist"})
		return
	}
	c.JSON(http.StatusOK, session)
}
