package attrs

type widget struct{ id int64 }

func (w *widget) ObjectID() int64   { return w.id }
func (w *widget) ClassName() string { return "Widget" }

type server struct{ id int64 }

func (s *server) ObjectID() int64   { return s.id }
func (s *server) ClassName() string { return "MiqServer" }

type provisionRequest struct{ id int64 }

func (r *provisionRequest) ObjectID() int64          { return r.id }
func (r *provisionRequest) ClassName() string        { return "MiqProvisionRequest" }
func (r *provisionRequest) BaseClassName() string    { return "MiqRequest" }
func (r *provisionRequest) AutomationFamily() Family { return FamilyRequest }

type provisionTask struct{ id int64 }

func (t *provisionTask) ObjectID() int64          { return t.id }
func (t *provisionTask) ClassName() string        { return "MiqProvisionVmware" }
func (t *provisionTask) BaseClassName() string    { return "MiqRequestTask" }
func (t *provisionTask) BaseModelName() string    { return "MiqProvision" }
func (t *provisionTask) AutomationFamily() Family { return FamilyRequestTask }

type vmwareVM struct{ id int64 }

func (v *vmwareVM) ObjectID() int64          { return v.id }
func (v *vmwareVM) ClassName() string        { return "ManageIQ::Providers::Vmware::InfraManager::Vm" }
func (v *vmwareVM) BaseClassName() string    { return "VmOrTemplate" }
func (v *vmwareVM) AutomationFamily() Family { return FamilyVMOrTemplate }

type hostRecord struct{ id int64 }

func (h *hostRecord) ObjectID() int64       { return h.id }
func (h *hostRecord) ClassName() string     { return "ManageIQ::Providers::Vmware::InfraManager::HostEsx" }
func (h *hostRecord) BaseClassName() string { return "Host" }
