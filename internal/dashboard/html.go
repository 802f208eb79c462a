package dashboard

const loginHTML = "<html><head><title>sitepanel login</title><style>body{background:#0f172a;color:#e2e8f0;font-family:sans-serif;display:flex;justify-content:center;align-items:center;min-height:100vh}form{background:#1e293b;padding:32px;border-radius:12px;border:1px solid #334155}input{display:block;margin:12px 0;padding:8px 12px;border-radius:6px;border:1px solid #475569;background:#0f172a;color:#e2e8f0;width:250px}button{padding:8px 20px;background:#3b82f6;color:white;border:none;border-radius:6px;cursor:pointer;font-weight:600}</style></head><body><form method='POST' action='/'><h2>sitepanel</h2><input type='password' name='password' placeholder='Password' autofocus><input type='password' name='admin_key' placeholder='Admin key (optional)'><button type='submit'>Login</button></form></body></html>"
