package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/claude-code-ui/agent-sessiond/src/mount"
)

// MachineHandler serves /machines, backed by src/mount (spec.md
// §6: "GET /machines -> { machines: MachineInfo[] }"). POST/DELETE and
// the per-machine mount/unmount routes are supplemented beyond the
// distilled HTTP table, since machines.json needs a way to be populated.
type MachineHandler struct {
	*BaseHandler
	store *mount.Store
	log   *logrus.Entry
}

// NewMachineHandler constructs a MachineHandler.
func NewMachineHandler(store *mount.Store, log *logrus.Entry) *MachineHandler {
	return &MachineHandler{BaseHandler: NewBaseHandler(), store: store, log: log}
}

// HandleList implements GET /machines.
func (h *MachineHandler) HandleList(c *gin.Context) {
	machines := h.store.List()
	active := h.store.ListActive()
	infos := make([]gin.H, 0, len(machines))
	for _, m := range machines {
		infos = append(infos, gin.H{
			"name":      m.Name,
			"host":      m.Host,
			"user":      m.User,
			"port":      m.Port,
			"mountPath": m.MountPath,
			"mounted":   active[m.Name],
		})
	}
	h.SendJSON(c, http.StatusOK, gin.H{"machines": infos})
}

type addMachineRequest struct {
	Name       string `json:"name"`
	Host       string `json:"host"`
	User       string `json:"user"`
	Port       int    `json:"port"`
	RemotePath string `json:"remotePath"`
}

// HandleAdd implements POST /machines.
func (h *MachineHandler) HandleAdd(c *gin.Context) {
	var req addMachineRequest
	if err := h.BindJSON(c, &req); err != nil {
		h.SendError(c, http.StatusBadRequest, err)
		return
	}

	m, err := h.store.Add(mount.Machine{
		Name: req.Name, Host: req.Host, User: req.User, Port: req.Port, RemotePath: req.RemotePath,
	})
	if err != nil {
		h.SendError(c, http.StatusBadRequest, err)
		return
	}
	h.SendJSON(c, http.StatusOK, gin.H{"machine": m})
}

// HandleRemove implements DELETE /machines/:name.
func (h *MachineHandler) HandleRemove(c *gin.Context) {
	name := c.Param("name")
	_ = h.store.Unmount(name, h.log)
	if err := h.store.Remove(name); err != nil {
		h.SendError(c, http.StatusNotFound, err)
		return
	}
	h.SendJSON(c, http.StatusOK, gin.H{"success": true})
}

// HandleMount implements POST /machines/:name/mount.
func (h *MachineHandler) HandleMount(c *gin.Context) {
	name := c.Param("name")
	if err := h.store.Mount(name, h.log); err != nil {
		h.SendError(c, http.StatusInternalServerError, err)
		return
	}
	h.SendJSON(c, http.StatusOK, gin.H{"success": true})
}

// HandleUnmount implements POST /machines/:name/unmount.
func (h *MachineHandler) HandleUnmount(c *gin.Context) {
	name := c.Param("name")
	if err := h.store.Unmount(name, h.log); err != nil {
		h.SendError(c, http.StatusInternalServerError, err)
		return
	}
	h.SendJSON(c, http.StatusOK, gin.H{"success": true})
}
